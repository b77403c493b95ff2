// Package offsets derives per-target byte ranges into a pixel blob.
//
// Offsets are never stored on disk; they are recomputed from image
// dimensions every time a bin is loaded or a subset is taken.
package offsets

import (
	"fmt"
	"iter"
	"strconv"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/sizing"
)

// Dims is the declared image size of one target.
type Dims struct {
	Width  int64
	Height int64
}

// Range is a byte range within the pixel blob.
type Range struct {
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Index holds the derived ranges of every target in order.
type Index struct {
	ranges []Range
	total  int64
}

// Build accumulates ranges left to right: offset(0) is zero, each following
// offset is the previous offset plus the previous length, and every length
// is width*height*bytesPerPixel.
func Build(dims []Dims, bytesPerPixel int) (*Index, error) {
	idx := &Index{ranges: make([]Range, len(dims))}
	bpp := int64(bytesPerPixel)
	for i, d := range dims {
		area, ok := sizing.MulInt64(d.Width, d.Height)
		if ok {
			area, ok = sizing.MulInt64(area, bpp)
		}
		if !ok {
			return nil, overflow(i, d)
		}
		next, ok := sizing.AddInt64(idx.total, area)
		if !ok {
			return nil, overflow(i, d)
		}
		idx.ranges[i] = Range{Offset: idx.total, Length: area}
		idx.total = next
	}
	return idx, nil
}

func overflow(i int, d Dims) error {
	fe := bintype.NewFormatError(bintype.ArtifactTable, bintype.ErrSizeOverflow)
	fe.Row = i
	fe.Actual = fmt.Sprintf("%dx%d", d.Width, d.Height)
	return fe
}

// Len returns the number of targets.
func (x *Index) Len() int {
	return len(x.ranges)
}

// Total returns the sum of all lengths.
func (x *Index) Total() int64 {
	return x.total
}

// Range returns the range of target i.
func (x *Index) Range(i int) (Range, error) {
	if i < 0 || i >= len(x.ranges) {
		fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrIndexOutOfRange)
		fe.Expected = fmt.Sprintf("0 <= index < %d", len(x.ranges))
		fe.Actual = strconv.Itoa(i)
		return Range{}, fe
	}
	return x.ranges[i], nil
}

// Ranges iterates over target indices and their ranges in order.
func (x *Index) Ranges() iter.Seq2[int, Range] {
	return func(yield func(int, Range) bool) {
		for i, r := range x.ranges {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Validate reports ErrBlobSizeMismatch unless actual equals Total.
func (x *Index) Validate(actual int64) error {
	if actual == x.total {
		return nil
	}
	fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrBlobSizeMismatch)
	fe.Expected = strconv.FormatInt(x.total, 10) + " bytes"
	fe.Actual = strconv.FormatInt(actual, 10) + " bytes"
	return fe
}

// ConsistentPrefix returns how many leading targets lie entirely within the
// first actual bytes of the blob.
func (x *Index) ConsistentPrefix(actual int64) int {
	for i, r := range x.ranges {
		if r.End() > actual {
			return i
		}
	}
	return len(x.ranges)
}

// Truncate returns an index holding the first n ranges.
func (x *Index) Truncate(n int) *Index {
	n = min(max(n, 0), len(x.ranges))
	var total int64
	if n > 0 {
		total = x.ranges[n-1].End()
	}
	return &Index{ranges: x.ranges[:n:n], total: total}
}
