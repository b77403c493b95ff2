package disk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/meigma/ifcb/cache"
)

// cachedSource serves ReadAt from whole cached blocks.
type cachedSource struct {
	src              cache.Source
	cache            *BlockCache
	sourceID         string
	blockSize        int64
	maxBlocksPerRead int
}

func (s *cachedSource) Size() int64 {
	return s.src.Size()
}

func (s *cachedSource) SourceID() string {
	return s.sourceID
}

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), size-off)

	first := off / s.blockSize
	last := (off + want - 1) / s.blockSize
	if s.maxBlocksPerRead > 0 && last-first+1 > int64(s.maxBlocksPerRead) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for i := first; i <= last; i++ {
		start := i * s.blockSize
		end := min(start+s.blockSize, size)
		data, err := s.cache.block(s.sourceID, s.blockSize, i, end-start, func() ([]byte, error) {
			return s.fetch(start, end-start)
		})
		if err != nil {
			return int(n), err
		}
		from := max(off, start)
		to := min(off+want, end)
		n += int64(copy(p[from-off:to-off], data[from-start:to-start]))
	}

	if want < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// ReadRange returns a stream over the cached ReadAt so that pixel readers
// preferring streams still go through the cache.
func (s *cachedSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	if length < 0 || off < 0 {
		return nil, fmt.Errorf("read range %d+%d: negative offset or length", off, length)
	}
	size := s.src.Size()
	if length == 0 || off >= size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(io.NewSectionReader(s, off, min(length, size-off))), nil
}

// fetch reads one block from the wrapped source.
func (s *cachedSource) fetch(off, length int64) ([]byte, error) {
	if rr, ok := s.src.(cache.RangeReader); ok {
		rc, err := rr.ReadRange(off, length)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		buf := make([]byte, length)
		if _, err := io.ReadFull(rc, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	buf := make([]byte, length)
	n, err := s.src.ReadAt(buf, off)
	if int64(n) == length {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}
