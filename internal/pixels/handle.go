package pixels

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/meigma/ifcb/internal/platform"
)

// ZstdExt is the extension of zstd-compressed artifacts.
const ZstdExt = ".zst"

// Handle is a reference-counted pixel source.
//
// A bin and every bin derived from it share one Handle; the underlying
// resource is released when the last reference is released.
type Handle struct {
	src     Source
	release func() error

	mu   sync.Mutex
	refs int
	err  error
}

// NewHandle returns a Handle holding one reference to src.
// release, if non-nil, runs once when the last reference is released.
func NewHandle(src Source, release func() error) *Handle {
	return &Handle{src: src, release: release, refs: 1}
}

// Source returns the shared pixel source.
func (h *Handle) Source() Source {
	return h.src
}

// Acquire adds a reference. It reports false if the handle was already
// fully released.
func (h *Handle) Acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return false
	}
	h.refs++
	return true
}

// Release drops a reference and releases the resource when none remain.
// Releasing an already released handle returns the first release error.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return h.err
	}
	h.refs--
	if h.refs == 0 && h.release != nil {
		h.err = h.release()
	}
	return h.err
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// OpenFile opens a pixel blob file for random access.
//
// A path ending in ZstdExt is decompressed into a temporary file first so
// that targets can still be read at arbitrary offsets; the temporary file is
// gone once the handle is released.
func OpenFile(path string, opts ...Option) (*Handle, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open pixel blob: %w", err)
	}

	if !strings.HasSuffix(path, ZstdExt) {
		src, err := newFileSource(f, "")
		if err != nil {
			f.Close()
			return nil, err
		}
		return NewHandle(src, f.Close), nil
	}

	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pixel blob: %w", err)
	}
	spool, err := spoolZstd(f, newConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	src, err := newFileSource(spool, fileSourceID(path, info))
	if err != nil {
		removeSpool(spool)
		return nil, err
	}
	return NewHandle(src, func() error { return removeSpool(spool) }), nil
}

// spoolZstd decodes r into a temporary file. Where the platform allows, the
// file is unlinked as soon as it is created and only the descriptor keeps it
// alive.
func spoolZstd(r io.Reader, cfg config) (*os.File, error) {
	dec, err := newDecoder(r, cfg)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(cfg.tempDir, "ifcb-roi-*")
	if err != nil {
		return nil, err
	}
	platform.RemoveOpen(tmp)
	if _, err := io.Copy(tmp, dec); err != nil {
		removeSpool(tmp)
		return nil, err
	}
	return tmp, nil
}

func removeSpool(f *os.File) error {
	err := f.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
