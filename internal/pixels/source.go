// Package pixels provides random and sequential access to a pixel blob.
package pixels

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Source provides random access to a pixel blob.
// SourceID must return a stable identifier for the underlying content.
type Source interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// rangeReader is implemented by sources that serve ranges more efficiently
// as a stream than through ReadAt, such as HTTP range requests.
type rangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// Serialized wraps src so that at most one ReadAt call runs at a time.
// Use it for sources whose ReadAt is not safe for concurrent use.
func Serialized(src Source) Source {
	return &serialized{src: src}
}

type serialized struct {
	mu  sync.Mutex
	src Source
}

func (s *serialized) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadAt(p, off)
}

func (s *serialized) Size() int64 {
	return s.src.Size()
}

func (s *serialized) SourceID() string {
	return s.src.SourceID()
}

// fileSource wraps *os.File to implement Source.
// os.File has ReadAt but not Size, so the size is cached at construction.
type fileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

func newFileSource(f *os.File, sourceID string) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	if sourceID == "" {
		sourceID = fileSourceID(f.Name(), info)
	}
	return &fileSource{file: f, size: info.Size(), sourceID: sourceID}, nil
}

func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return fs.file.ReadAt(p, off)
}

func (fs *fileSource) Size() int64 {
	return fs.size
}

func (fs *fileSource) SourceID() string {
	return fs.sourceID
}

func fileSourceID(path string, info os.FileInfo) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("file:%s:%d:%d", absPath, info.Size(), info.ModTime().UnixNano())
}

var _ Source = (*fileSource)(nil)
