package pixels

import (
	"fmt"
	"io"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/sizing"
)

// Reader performs bounds-checked positioned reads from a Source.
//
// Reads are O(1) in the blob size. A Reader is safe for concurrent use when
// its Source supports concurrent ReadAt, which *os.File does.
type Reader struct {
	src         Source
	maxReadSize int64
}

// NewReader returns a Reader for src.
func NewReader(src Source, opts ...Option) *Reader {
	cfg := newConfig(opts)
	return &Reader{src: src, maxReadSize: cfg.maxReadSize}
}

// Source returns the underlying source.
func (r *Reader) Source() Source {
	return r.src
}

// Size returns the blob size in bytes.
func (r *Reader) Size() int64 {
	return r.src.Size()
}

// Read returns the length bytes starting at off.
func (r *Reader) Read(off, length int64) ([]byte, error) {
	if err := r.checkRange(off, length); err != nil {
		return nil, err
	}
	n, err := sizing.ToInt(length, bintype.ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	var src io.Reader
	if rr, ok := r.src.(rangeReader); ok {
		rc, err := rr.ReadRange(off, length)
		if err != nil {
			return nil, fmt.Errorf("read pixels at %d: %w", off, err)
		}
		defer rc.Close()
		src = rc
	} else {
		src = io.NewSectionReader(r.src, off, length)
	}

	got, err := io.ReadFull(src, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read pixels at %d: short read (%d of %d bytes)", off, got, n)
		}
		return nil, fmt.Errorf("read pixels at %d: %w", off, err)
	}
	return buf, nil
}

// Section returns a streaming reader over length bytes starting at off.
func (r *Reader) Section(off, length int64) (*io.SectionReader, error) {
	if err := r.checkRange(off, length); err != nil {
		return nil, err
	}
	return io.NewSectionReader(r.src, off, length), nil
}

func (r *Reader) checkRange(off, length int64) error {
	size := r.src.Size()
	end, ok := sizing.AddInt64(off, length)
	if !ok {
		fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrIndexOutOfRange)
		fe.Offset = max(off, 0)
		fe.Expected = fmt.Sprintf("non-negative range within %d bytes", size)
		fe.Actual = fmt.Sprintf("offset %d, length %d", off, length)
		return fe
	}
	if end > size {
		fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrIndexOutOfRange)
		fe.Offset = off
		fe.Expected = fmt.Sprintf("range within %d bytes", size)
		fe.Actual = fmt.Sprintf("range ending at %d", end)
		return fe
	}
	if r.maxReadSize > 0 && length > r.maxReadSize {
		fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrSizeOverflow)
		fe.Offset = off
		fe.Expected = fmt.Sprintf("at most %d bytes", r.maxReadSize)
		fe.Actual = fmt.Sprintf("%d bytes", length)
		return fe
	}
	return nil
}
