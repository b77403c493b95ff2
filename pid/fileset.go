package pid

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/ifcb/internal/bintype"
)

// Artifacts lists the three artifacts of a bin in canonical order.
var Artifacts = []bintype.Artifact{bintype.ArtifactHeader, bintype.ArtifactTable, bintype.ArtifactBlob}

// CompressedExt marks a zstd-compressed artifact, e.g. <lid>.roi.zst.
const CompressedExt = ".zst"

// Fileset names the artifact files of one bin in a directory.
type Fileset struct {
	Dir string
	LID string

	// compressed marks artifacts located with CompressedExt.
	compressed [3]bool
}

// NewFileset returns the uncompressed fileset of lid in dir.
func NewFileset(dir, lid string) Fileset {
	return Fileset{Dir: dir, LID: lid}
}

// Locate finds the artifacts of lid in dir, accepting a CompressedExt
// variant of any artifact whose plain file is absent. It fails with an
// error matching fs.ErrNotExist if any artifact is missing.
func Locate(dir, lid string) (Fileset, error) {
	f := NewFileset(dir, lid)
	for i, a := range Artifacts {
		plain := f.Path(a)
		if _, err := os.Stat(plain); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Fileset{}, fmt.Errorf("locate %s: %w", plain, err)
		}
		if _, err := os.Stat(plain + CompressedExt); err != nil {
			return Fileset{}, fmt.Errorf("locate %s: %w", plain, err)
		}
		f.compressed[i] = true
	}
	return f, nil
}

// Path returns the file path of artifact a.
func (f Fileset) Path(a bintype.Artifact) string {
	p := filepath.Join(f.Dir, f.LID+a.Ext())
	if i := int(a); i < len(f.compressed) && f.compressed[i] {
		p += CompressedExt
	}
	return p
}

// HeaderPath returns the path of the header file.
func (f Fileset) HeaderPath() string { return f.Path(bintype.ArtifactHeader) }

// TablePath returns the path of the feature table file.
func (f Fileset) TablePath() string { return f.Path(bintype.ArtifactTable) }

// BlobPath returns the path of the pixel blob file.
func (f Fileset) BlobPath() string { return f.Path(bintype.ArtifactBlob) }

// Exists reports whether every artifact file is present.
func (f Fileset) Exists() bool {
	for _, a := range Artifacts {
		if _, err := os.Stat(f.Path(a)); err != nil {
			return false
		}
	}
	return true
}

// Sizes returns the on-disk size of every artifact.
func (f Fileset) Sizes() (map[bintype.Artifact]int64, error) {
	sizes := make(map[bintype.Artifact]int64, len(Artifacts))
	for _, a := range Artifacts {
		info, err := os.Stat(f.Path(a))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", a, err)
		}
		sizes[a] = info.Size()
	}
	return sizes, nil
}

// ImageName returns the export file name of target n (1-based) of the bin
// with the given lid, e.g. D20160714T023910_IFCB101_00014.png.
func ImageName(lid string, n int, ext string) string {
	return fmt.Sprintf("%s_%05d%s", lid, n, ext)
}
