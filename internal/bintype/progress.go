package bintype

// ProgressEvent represents a progress update during write or export operations.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Target is the index of the target currently being processed, or -1.
	Target int

	// BytesDone is the number of pixel bytes completed so far.
	BytesDone uint64

	// BytesTotal is the total pixel bytes for the operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// TargetsDone is the number of targets completed.
	TargetsDone int

	// TargetsTotal is the total number of targets.
	TargetsTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for write and export operations.
const (
	// StageStaging indicates artifacts are being written to temporary files.
	StageStaging ProgressStage = iota

	// StagePublishing indicates staged artifacts are being renamed into place.
	StagePublishing

	// StageExporting indicates target images are being exported.
	StageExporting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageStaging:
		return "staging"
	case StagePublishing:
		return "publishing"
	case StageExporting:
		return "exporting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
