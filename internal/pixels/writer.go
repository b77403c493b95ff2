package pixels

import (
	"context"
	"io"
	"iter"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ifcb/internal/bintype"
)

// CountingWriter wraps a writer and counts bytes written.
type CountingWriter struct {
	W io.Writer
	N int64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		if cw.N > 1<<63-1-int64(n) {
			return n, bintype.ErrSizeOverflow
		}
		cw.N += int64(n)
	}
	return n, err
}

// Writer appends target images to a pixel blob in order.
type Writer struct {
	cw CountingWriter
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: CountingWriter{W: w}}
}

// Written returns the number of bytes committed so far.
func (w *Writer) Written() int64 {
	return w.cw.N
}

// Append writes p and returns the offset it was written at.
func (w *Writer) Append(p []byte) (int64, error) {
	off := w.cw.N
	n, err := w.cw.Write(p)
	if err != nil {
		return off, err
	}
	if n != len(p) {
		return off, io.ErrShortWrite
	}
	return off, nil
}

// WriteSequence appends every chunk of seq in order and returns the offset
// of each chunk and the total bytes committed. ctx is checked between chunks.
// On error the offsets of the chunks committed so far are returned.
func (w *Writer) WriteSequence(ctx context.Context, seq iter.Seq2[[]byte, error]) ([]int64, int64, error) {
	var offsets []int64
	for chunk, err := range seq {
		if err != nil {
			return offsets, w.cw.N, err
		}
		if err := ctx.Err(); err != nil {
			return offsets, w.cw.N, err
		}
		off, err := w.Append(chunk)
		if err != nil {
			return offsets, w.cw.N, err
		}
		offsets = append(offsets, off)
	}
	return offsets, w.cw.N, nil
}

// Digest returns the sha256 digest and total length of the chunks in seq,
// which is the digest of a blob written from the same sequence.
func Digest(seq iter.Seq2[[]byte, error]) (digest.Digest, int64, error) {
	digester := digest.Canonical.Digester()
	cw := &CountingWriter{W: digester.Hash()}
	for p, err := range seq {
		if err != nil {
			return "", cw.N, err
		}
		if _, err := cw.Write(p); err != nil {
			return "", cw.N, err
		}
	}
	return digester.Digest(), cw.N, nil
}
