package ifcb

import "github.com/meigma/ifcb/internal/bintype"

// Sentinel errors re-exported from internal/bintype.
var (
	// ErrMissingRequiredKey is returned when the header lacks a required key.
	ErrMissingRequiredKey = bintype.ErrMissingRequiredKey

	// ErrMalformedLine is returned for header lines that are neither
	// comments nor key/value pairs.
	ErrMalformedLine = bintype.ErrMalformedLine

	// ErrUnsupportedVersion is returned for schema versions with no
	// registered layout.
	ErrUnsupportedVersion = bintype.ErrUnsupportedVersion

	// ErrRowCountMismatch is returned when the feature table row count
	// differs from the declared target count.
	ErrRowCountMismatch = bintype.ErrRowCountMismatch

	// ErrTypeMismatch is returned when a value cannot be coerced to its type.
	ErrTypeMismatch = bintype.ErrTypeMismatch

	// ErrSchemaMismatch is returned when a row's field count differs from
	// the schema's column count.
	ErrSchemaMismatch = bintype.ErrSchemaMismatch

	// ErrBlobSizeMismatch is returned when the derived pixel length differs
	// from the pixel blob's size.
	ErrBlobSizeMismatch = bintype.ErrBlobSizeMismatch

	// ErrIndexOutOfRange is returned for target lookups outside [0, Len).
	ErrIndexOutOfRange = bintype.ErrIndexOutOfRange

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = bintype.ErrSizeOverflow

	// ErrClosed is returned by operations on a closed bin.
	ErrClosed = bintype.ErrClosed
)

// FormatError describes a structural or schema violation in one artifact.
// Its Err field is always one of the sentinel errors above.
type FormatError = bintype.FormatError

// Artifact identifies one of the three files of a bin.
type Artifact = bintype.Artifact

// Artifacts of a bin.
const (
	ArtifactHeader = bintype.ArtifactHeader
	ArtifactTable  = bintype.ArtifactTable
	ArtifactBlob   = bintype.ArtifactBlob
)
