package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/ifcb/internal/pixels"
)

// Format selects how a DirSink encodes target images.
type Format uint8

const (
	// FormatPNG writes one grayscale PNG per target.
	FormatPNG Format = iota

	// FormatRaw writes the target's pixel bytes unchanged.
	FormatRaw
)

// Ext returns the file extension of the format.
func (f Format) Ext() string {
	if f == FormatRaw {
		return ".raw"
	}
	return ".png"
}

// DirSink writes target images into a directory.
//
// Each image is written to a temporary file in the destination directory
// and renamed to its final name on Commit, so partially written images are
// never visible.
type DirSink struct {
	root      *os.Root
	dir       string
	format    Format
	overwrite bool
	encoder   png.Encoder
}

// DirSinkOption configures a DirSink.
type DirSinkOption func(*DirSink)

// WithFormat sets the output format. The default is FormatPNG.
func WithFormat(f Format) DirSinkOption {
	return func(s *DirSink) {
		s.format = f
	}
}

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) DirSinkOption {
	return func(s *DirSink) {
		s.overwrite = overwrite
	}
}

// WithCompressionLevel sets the PNG compression level.
func WithCompressionLevel(level png.CompressionLevel) DirSinkOption {
	return func(s *DirSink) {
		s.encoder.CompressionLevel = level
	}
}

// NewDirSink creates a DirSink writing into dir, creating it if needed.
// The sink must be closed to release the directory handle.
func NewDirSink(dir string, opts ...DirSinkOption) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", dir, err)
	}
	s := &DirSink{root: root, dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the destination directory.
func (s *DirSink) Close() error {
	return s.root.Close()
}

// Path returns the destination path of item.
func (s *DirSink) Path(item *Item) string {
	return filepath.Join(s.dir, s.name(item))
}

func (s *DirSink) name(item *Item) string {
	return item.Name + s.format.Ext()
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *DirSink) ShouldProcess(item *Item) bool {
	if s.overwrite {
		return true
	}
	_, err := s.root.Stat(s.name(item))
	return errors.Is(err, os.ErrNotExist)
}

// Writer returns a Committer for the raw pixels of item.
func (s *DirSink) Writer(item *Item) (Committer, error) {
	f, tempRel, err := createTempFile(s.root, ".ifcb-")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{sink: s, item: item, tempFile: f, tempRel: tempRel}, nil
}

// PutBuffered encodes and writes the pixels of item.
func (s *DirSink) PutBuffered(item *Item, content []byte) error {
	w, err := s.Writer(item)
	if err != nil {
		return err
	}
	if err := s.encode(w, item, content); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	return w.Commit()
}

func (s *DirSink) encode(w io.Writer, item *Item, content []byte) error {
	if s.format == FormatRaw {
		return writeAll(w, content)
	}
	img, err := pixels.Image(content, item.Width, item.Height, item.BytesPerPixel)
	if err != nil {
		return err
	}
	return s.encoder.Encode(w, img)
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	sink     *DirSink
	item     *Item
	tempFile *os.File
	tempRel  string
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file and renames it to the final path.
func (c *fileCommitter) Commit() error {
	if err := c.tempFile.Close(); err != nil {
		_ = c.sink.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := c.sink.root.Rename(c.tempRel, c.sink.name(c.item)); err != nil {
		_ = c.sink.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.sink.Path(c.item), err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.sink.root.Remove(c.tempRel)
}

func createTempFile(root *os.Root, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := prefix + name
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
