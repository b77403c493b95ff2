package ifcb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/pixels"
	"github.com/meigma/ifcb/internal/platform"
	"github.com/meigma/ifcb/pid"
)

// ArtifactInfo describes one written artifact.
type ArtifactInfo struct {
	Path   string
	Size   int64
	Digest digest.Digest
}

// WriteResult describes a completed Write.
type WriteResult struct {
	Header ArtifactInfo
	Table  ArtifactInfo
	Blob   ArtifactInfo

	// Offsets holds the offset of every target in the written pixel blob.
	Offsets []int64
}

// WriteOption configures Write and WriteFileset.
type WriteOption func(*writeConfig)

type writeConfig struct {
	progress ProgressFunc
	perm     fs.FileMode
}

// WriteWithProgress sets a callback for write progress.
func WriteWithProgress(fn ProgressFunc) WriteOption {
	return func(c *writeConfig) {
		c.progress = fn
	}
}

// WriteWithPerm sets the permission bits of the written files (default 0644).
func WriteWithPerm(perm fs.FileMode) WriteOption {
	return func(c *writeConfig) {
		c.perm = perm.Perm()
	}
}

// Write serializes the bin to three files.
//
// The header and table are written byte-for-byte as loaded, except that a
// bin whose target count changed (by Select or lenient trimming) declares
// its new count. All three artifacts are staged to temporary files beside
// their destinations and synced; only then are existing destinations moved
// aside and the staged files renamed into place. If publishing fails, files
// already published are rolled back. Staged files never outlive a failed
// Write. Concurrent writes to the same destination are serialized.
func (b *Bin) Write(ctx context.Context, headerPath, tablePath, blobPath string, opts ...WriteOption) (*WriteResult, error) {
	cfg := writeConfig{perm: 0o644}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != stateReady {
		return nil, ErrClosed
	}

	dests := make([]string, 0, 3)
	for _, p := range []string{headerPath, tablePath, blobPath} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		dests = append(dests, abs)
	}
	if dests[0] == dests[1] || dests[0] == dests[2] || dests[1] == dests[2] {
		return nil, errors.New("ifcb: write: artifact paths must be distinct")
	}

	unlock := destLocks.lock(dests...)
	defer unlock()

	hdr := b.hdr
	if hdr.TargetCount() != b.idx.Len() {
		hdr = hdr.WithTargetCount(b.idx.Len())
	}

	files := make([]*stagedFile, 0, 3)
	defer func() {
		for _, f := range files {
			f.discard()
		}
	}()

	f, err := stage(dests[0], cfg.perm, func(w io.Writer) error {
		_, err := w.Write(hdr.Bytes())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stage header: %w", err)
	}
	files = append(files, f)

	f, err = stage(dests[1], cfg.perm, func(w io.Writer) error {
		_, err := w.Write(b.tbl.Bytes())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stage feature table: %w", err)
	}
	files = append(files, f)

	var offs []int64
	f, err = stage(dests[2], cfg.perm, func(w io.Writer) error {
		var n int64
		var err error
		offs, n, err = pixels.NewWriter(w).WriteSequence(ctx, b.stagedPixels(cfg.progress))
		if err != nil {
			return err
		}
		if n != b.idx.Total() {
			return fmt.Errorf("%w: wrote %d of %d pixel bytes", bintype.ErrBlobSizeMismatch, n, b.idx.Total())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stage pixel blob: %w", err)
	}
	files = append(files, f)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.progress != nil {
		cfg.progress(ProgressEvent{Stage: StagePublishing, Target: -1, TargetsDone: b.idx.Len(), TargetsTotal: b.idx.Len()})
	}
	if err := publish(files); err != nil {
		return nil, err
	}

	res := &WriteResult{
		Header:  files[0].info(),
		Table:   files[1].info(),
		Blob:    files[2].info(),
		Offsets: offs,
	}
	b.log().Info("bin written",
		"lid", b.lid,
		"targets", b.idx.Len(),
		"header", res.Header.Path,
		"blobBytes", res.Blob.Size,
		"blobDigest", res.Blob.Digest.String())
	return res, nil
}

// WriteFileset writes the bin into dir as <lid>.hdr, <lid>.adc and <lid>.roi.
func (b *Bin) WriteFileset(ctx context.Context, dir string, opts ...WriteOption) (*WriteResult, error) {
	if b.lid == "" {
		return nil, errors.New("ifcb: write fileset: bin has no lid")
	}
	f := pid.NewFileset(dir, b.lid)
	return b.Write(ctx, f.HeaderPath(), f.TablePath(), f.BlobPath(), opts...)
}

// BlobDigest reads every target and returns the sha256 digest of the pixel
// blob Write would produce for the bin.
func (b *Bin) BlobDigest() (digest.Digest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != stateReady {
		return "", ErrClosed
	}
	d, _, err := pixels.Digest(b.stagedPixels(nil))
	return d, err
}

// stagedPixels yields every target's pixels in order. The caller must hold b.mu.
func (b *Bin) stagedPixels(progress ProgressFunc) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		total := uint64(b.idx.Total()) //nolint:gosec // non-negative
		var done uint64
		for i, r := range b.idx.Ranges() {
			p, err := b.imageBytes(i)
			if !yield(p, err) || err != nil {
				return
			}
			done += uint64(r.Length) //nolint:gosec // non-negative
			if progress != nil {
				progress(ProgressEvent{
					Stage:        StageStaging,
					Target:       i,
					BytesDone:    done,
					BytesTotal:   total,
					TargetsDone:  i + 1,
					TargetsTotal: b.idx.Len(),
				})
			}
		}
	}
}

// stagedFile is an artifact written to a temporary file beside its
// destination.
type stagedFile struct {
	dest      string
	temp      string
	backup    string
	size      int64
	digest    digest.Digest
	published bool
}

func (f *stagedFile) info() ArtifactInfo {
	return ArtifactInfo{Path: f.dest, Size: f.size, Digest: f.digest}
}

// discard removes the staged file and any leftover backup once the write
// has finished or failed.
func (f *stagedFile) discard() {
	if !f.published {
		_ = os.Remove(f.temp) //nolint:errcheck // best-effort cleanup
	}
	if f.backup != "" {
		_ = os.Remove(f.backup) //nolint:errcheck // best-effort cleanup
	}
}

// stage writes an artifact to a synced temporary file beside dest.
func stage(dest string, perm fs.FileMode, write func(io.Writer) error) (*stagedFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".ifcb-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()

	digester := digest.Canonical.Digester()
	cw := &pixels.CountingWriter{W: io.MultiWriter(tmp, digester.Hash())}
	if err := write(cw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return &stagedFile{dest: dest, temp: tmpPath, size: cw.N, digest: digester.Digest()}, nil
}

// publish moves existing destinations aside and renames staged files into
// place, rolling back on failure.
func publish(files []*stagedFile) error {
	for i, f := range files {
		if err := f.moveAside(); err != nil {
			rollback(files[:i+1])
			return err
		}
		if err := os.Rename(f.temp, f.dest); err != nil {
			rollback(files[:i+1])
			return fmt.Errorf("publish %s: %w", f.dest, err)
		}
		f.published = true
	}

	dirs := make(map[string]struct{}, len(files))
	for _, f := range files {
		dirs[filepath.Dir(f.dest)] = struct{}{}
	}
	for dir := range dirs {
		if err := platform.SyncDir(dir); err != nil {
			return fmt.Errorf("sync %s: %w", dir, err)
		}
	}
	return nil
}

// moveAside renames an existing destination to a unique backup name.
func (f *stagedFile) moveAside() error {
	if _, err := os.Lstat(f.dest); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", f.dest, err)
	}
	suffix, err := randomSuffix()
	if err != nil {
		return err
	}
	backup := f.dest + ".ifcb-bak-" + suffix
	if err := os.Rename(f.dest, backup); err != nil {
		return fmt.Errorf("move aside %s: %w", f.dest, err)
	}
	f.backup = backup
	return nil
}

// rollback restores the destinations of files to their state before publish.
func rollback(files []*stagedFile) {
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		if f.published {
			_ = os.Remove(f.dest) //nolint:errcheck // replaced below or left absent
			f.published = false
		}
		if f.backup != "" {
			if err := os.Rename(f.backup, f.dest); err == nil {
				f.backup = ""
			}
		}
	}
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
