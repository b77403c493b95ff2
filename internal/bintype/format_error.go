package bintype

import (
	"errors"
	"strconv"
	"strings"
)

// FormatError describes a structural or schema violation in one artifact.
//
// Err is always one of the package sentinels so callers can match with
// errors.Is; the remaining fields locate the problem. Line is 1-based and
// zero when unknown. Row and Offset are -1 when unknown.
type FormatError struct {
	Artifact Artifact
	Path     string
	Line     int
	Row      int
	Offset   int64
	Column   string
	Key      string
	Expected string
	Actual   string
	Err      error
}

// NewFormatError returns a FormatError for artifact with no location set.
func NewFormatError(artifact Artifact, err error) *FormatError {
	return &FormatError{Artifact: artifact, Row: -1, Offset: -1, Err: err}
}

// Error implements error.
func (e *FormatError) Error() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("ifcb: format error")
	}
	b.WriteString(": ")
	b.WriteString(e.Artifact.String())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Line > 0 {
		b.WriteString(", line ")
		b.WriteString(strconv.Itoa(e.Line))
	}
	if e.Row >= 0 {
		b.WriteString(", row ")
		b.WriteString(strconv.Itoa(e.Row))
	}
	if e.Column != "" {
		b.WriteString(", column ")
		b.WriteString(strconv.Quote(e.Column))
	}
	if e.Key != "" {
		b.WriteString(", key ")
		b.WriteString(strconv.Quote(e.Key))
	}
	if e.Offset >= 0 {
		b.WriteString(", offset ")
		b.WriteString(strconv.FormatInt(e.Offset, 10))
	}
	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": expected ")
		b.WriteString(e.Expected)
		b.WriteString(", got ")
		b.WriteString(e.Actual)
	}
	return b.String()
}

// Unwrap returns the sentinel error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// WithPaths sets Path on the first FormatError in err's chain from paths,
// keyed by the error's artifact, and returns err. Errors without a
// FormatError, or whose Path is already set, are returned unchanged.
func WithPaths(err error, paths map[Artifact]string) error {
	var fe *FormatError
	if errors.As(err, &fe) && fe.Path == "" {
		fe.Path = paths[fe.Artifact]
	}
	return err
}
