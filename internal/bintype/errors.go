package bintype

import "errors"

// Sentinel errors for bin operations.
var (
	// ErrMissingRequiredKey is returned when the header lacks a required key.
	ErrMissingRequiredKey = errors.New("ifcb: missing required header key")

	// ErrMalformedLine is returned when a header line is neither a comment
	// nor a key/value pair.
	ErrMalformedLine = errors.New("ifcb: malformed header line")

	// ErrUnsupportedVersion is returned for schema versions outside the registry.
	ErrUnsupportedVersion = errors.New("ifcb: unsupported schema version")

	// ErrRowCountMismatch is returned when the feature table row count differs
	// from the header's declared target count.
	ErrRowCountMismatch = errors.New("ifcb: row count mismatch")

	// ErrTypeMismatch is returned when a value cannot be coerced to its column type.
	ErrTypeMismatch = errors.New("ifcb: type mismatch")

	// ErrSchemaMismatch is returned when a row's column set differs from the schema.
	ErrSchemaMismatch = errors.New("ifcb: schema mismatch")

	// ErrBlobSizeMismatch is returned when the derived pixel length differs
	// from the pixel blob's actual size.
	ErrBlobSizeMismatch = errors.New("ifcb: pixel blob size mismatch")

	// ErrIndexOutOfRange is returned for target lookups outside [0, count).
	ErrIndexOutOfRange = errors.New("ifcb: target index out of range")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("ifcb: size overflow")

	// ErrClosed is returned by operations on a closed bin.
	ErrClosed = errors.New("ifcb: bin is closed")
)
