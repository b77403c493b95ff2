package ifcb

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/pixels"
	"github.com/meigma/ifcb/pid"
)

// Open opens a bin from its header, feature table and pixel blob files.
//
// Header and table are read into memory; the pixel blob is opened for
// random access. Any artifact may be zstd-compressed, marked by a trailing
// ".zst". The returned Bin must be closed to release the blob; if Open
// fails, everything it opened has already been released.
func Open(headerPath, tablePath, blobPath string, opts ...Option) (*Bin, error) {
	cfg := newConfig(opts)
	if cfg.lid == "" {
		cfg.lid = stem(headerPath)
	}
	paths := map[Artifact]string{
		ArtifactHeader: headerPath,
		ArtifactTable:  tablePath,
		ArtifactBlob:   blobPath,
	}

	readOpts := []pixels.Option{
		pixels.WithMaxReadSize(cfg.maxArtifactSize),
		pixels.WithMaxDecoderMemory(cfg.maxDecoderMemory),
	}
	headerData, err := pixels.ReadFile(headerPath, readOpts...)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	tableData, err := pixels.ReadFile(tablePath, readOpts...)
	if err != nil {
		return nil, fmt.Errorf("read feature table: %w", err)
	}

	h, err := pixels.OpenFile(blobPath,
		pixels.WithMaxDecoderMemory(cfg.maxDecoderMemory),
		pixels.WithTempDir(cfg.tempDir))
	if err != nil {
		return nil, err
	}

	b, err := load(headerData, tableData, h, cfg)
	if err != nil {
		return nil, bintype.WithPaths(err, paths)
	}
	return b, nil
}

// OpenFileset opens the bin named lid in dir, accepting zstd-compressed
// variants of any artifact.
func OpenFileset(dir, lid string, opts ...Option) (*Bin, error) {
	f, err := pid.Locate(dir, lid)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLID(lid)}, opts...)
	return Open(f.HeaderPath(), f.TablePath(), f.BlobPath(), opts...)
}

// stem returns the base name of path without artifact or compression
// extensions.
func stem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, pid.CompressedExt)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
