package ifcb

import (
	"github.com/meigma/ifcb/internal/batch"
	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/header"
	"github.com/meigma/ifcb/internal/pixels"
	"github.com/meigma/ifcb/internal/schema"
	"github.com/meigma/ifcb/internal/table"
)

// Re-export types from internal packages for the public API.
type (
	// Header is the parsed run header of a bin.
	Header = header.Header

	// Descriptor fixes the feature-table layout of one schema version.
	Descriptor = schema.Descriptor

	// Row is one feature-table row.
	Row = table.Row

	// Value is one coerced feature-table field.
	Value = table.Value

	// Source provides random access to a pixel blob.
	//
	// Implementations exist for local files and HTTP range requests.
	// SourceID must return a stable identifier for the underlying content.
	Source = pixels.Source

	// ProgressEvent represents a progress update during write or export.
	ProgressEvent = bintype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = bintype.ProgressStage

	// ProgressFunc receives progress updates. It must be safe for
	// concurrent calls.
	ProgressFunc = bintype.ProgressFunc

	// ExportSink receives exported target images.
	ExportSink = batch.Sink

	// ExportItem describes one target image handed to an ExportSink.
	ExportItem = batch.Item

	// ExportStats summarizes an Export call.
	ExportStats = batch.ProcessStats

	// DirSink writes exported images into a directory.
	DirSink = batch.DirSink

	// DirSinkOption configures a DirSink.
	DirSinkOption = batch.DirSinkOption

	// ImageFormat selects how a DirSink encodes images.
	ImageFormat = batch.Format
)

// Re-export progress stage constants.
const (
	StageStaging    = bintype.StageStaging
	StagePublishing = bintype.StagePublishing
	StageExporting  = bintype.StageExporting
)

// Re-export image formats.
const (
	FormatPNG = batch.FormatPNG
	FormatRaw = batch.FormatRaw
)

// Directory sink constructors and options re-exported from internal/batch.
var (
	// NewDirSink creates a DirSink writing into dir. It must be closed.
	NewDirSink = batch.NewDirSink

	// SinkWithFormat sets a DirSink's output format (default FormatPNG).
	SinkWithFormat = batch.WithFormat

	// SinkWithOverwrite lets a DirSink replace existing files.
	SinkWithOverwrite = batch.WithOverwrite
)

// Target is one imaged particle of a bin.
//
// Offset and Length locate the target's pixels within the bin's own pixel
// blob as it would be written; they are derived, never stored.
type Target struct {
	// Index is the 0-based position of the target in the bin.
	Index int

	// Number is the 1-based target number in the bin the target was first
	// loaded from. It is unchanged by Select.
	Number int

	// Row holds the target's feature values.
	Row Row

	Width  int64
	Height int64
	Offset int64
	Length int64
}

// HasImage reports whether the target has a non-empty image.
func (t Target) HasImage() bool {
	return t.Width > 0 && t.Height > 0
}
