package batch

import "io"

// Item is one target image to export.
type Item struct {
	// Index is the 0-based position of the target in its bin.
	Index int

	// Name is the output name of the target without extension.
	Name string

	// Offset and Length locate the target's pixels in the source blob.
	Offset int64
	Length int64

	Width         int64
	Height        int64
	BytesPerPixel int
}

func (it *Item) end() int64 {
	return it.Offset + it.Length
}

// Sink receives target pixels during batch processing.
//
// Implementations determine where content is written and can filter which
// items to process.
type Sink interface {
	// ShouldProcess returns false if this item should be skipped.
	ShouldProcess(item *Item) bool

	// Writer returns a writer for the item's raw pixels.
	// The returned Committer must have Commit() called after a successful
	// write, or Discard() called on any error.
	Writer(item *Item) (Committer, error)
}

// BufferedSink allows sinks to handle pixels without streaming.
//
// Implementations should not mutate or retain the pixel slice.
type BufferedSink interface {
	PutBuffered(item *Item, pixels []byte) error
}

// Committer is a writer that can be committed or discarded.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content available.
	Commit() error

	// Discard aborts the write and cleans up any temporary resources.
	Discard() error
}

// ProcessStats contains statistics from a batch processing operation.
type ProcessStats struct {
	// Processed is the number of items successfully written to the sink.
	Processed int

	// Skipped is the number of items skipped (ShouldProcess returned false).
	Skipped int

	// TotalBytes is the sum of Length for all processed items.
	TotalBytes int64
}
