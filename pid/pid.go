// Package pid parses bin run identifiers and names bin artifacts.
//
// Two identifier revisions exist. Revision 1 identifiers look like
// IFCB1_2008_013_423000 and carry the instrument first and a day-of-year
// timestamp; revision 2 identifiers look like D20160714T023910_IFCB101.
// Either may be preceded by a path or URL namespace and followed by a target
// number, a product name and a file extension:
//
//	http://example.org/data/D20160714T023910_IFCB101_00014_blob.png
package pid

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for strings that are not bin identifiers.
var ErrInvalid = errors.New("pid: invalid identifier")

// DefaultProduct is the product of identifiers that name none.
const DefaultProduct = "raw"

// Timestamp layouts of the two identifier revisions.
const (
	LayoutV1 = "2006_002_150405"
	LayoutV2 = "20060102T150405"
)

var (
	windowsDirs = regexp.MustCompile(`^.*\\`)
	namespaced  = regexp.MustCompile(`^(.*/)?(.*)$`)
	seriesLabel = regexp.MustCompile(`^(?:.*/)?(.*)/$`)
	v2Pattern   = regexp.MustCompile(`^(D((\d{4})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])T([01]\d|2[0-3])([0-5]\d)([0-5]\d))_IFCB(\d+))(.*)$`)
	v1Pattern   = regexp.MustCompile(`^(IFCB(\d+)_((\d{4})_([0-3]\d\d)_([01]\d|2[0-3])([0-5]\d)([0-5]\d)))(.*)$`)
	suffixes    = regexp.MustCompile(`^(?:_(\d+))?(?:_([a-zA-Z][a-zA-Z0-9_]*))?(?:\.([a-zA-Z][a-zA-Z0-9]*))?`)
)

// Pid is a parsed bin identifier.
type Pid struct {
	pid string

	// Namespace is any leading path or URL prefix, including the final slash.
	Namespace string

	// SeriesLabel is the last path element of Namespace, if any.
	SeriesLabel string

	// BinLID is the bare bin identifier, e.g. D20160714T023910_IFCB101.
	BinLID string

	// LID is BinLID plus the target number, when one is present.
	LID string

	// Instrument is the instrument number.
	Instrument int

	// Timestamp is the acquisition start time in UTC.
	Timestamp time.Time

	// TimestampLayout is the time layout of the timestamp text.
	TimestampLayout string

	// SchemaVersion is the instrument revision implied by the identifier.
	SchemaVersion int

	// YearDay is the date part of the timestamp text.
	YearDay string

	// Target is the 1-based target number, or zero when absent.
	Target int

	// Product names the data product. It is DefaultProduct when absent.
	Product string

	// Extension is the file extension without its leading dot.
	Extension string
}

// Parse parses s as a bin identifier. Windows directory prefixes are
// discarded; other path or URL prefixes are kept as the namespace.
func Parse(s string) (Pid, error) {
	stripped := windowsDirs.ReplaceAllString(s, "")
	parts := namespaced.FindStringSubmatch(stripped)
	p := Pid{pid: stripped, Namespace: parts[1]}
	suffix := parts[2]
	if m := seriesLabel.FindStringSubmatch(p.Namespace); m != nil {
		p.SeriesLabel = m[1]
	}

	var rest, instrument, stamp string
	if m := v2Pattern.FindStringSubmatch(suffix); m != nil {
		p.BinLID, stamp, instrument, rest = m[1], m[2], m[9], m[10]
		p.SchemaVersion = 2
		p.TimestampLayout = LayoutV2
		p.YearDay = m[3] + m[4] + m[5]
	} else if m := v1Pattern.FindStringSubmatch(suffix); m != nil {
		p.BinLID, instrument, stamp, rest = m[1], m[2], m[3], m[9]
		p.SchemaVersion = 1
		p.TimestampLayout = LayoutV1
		p.YearDay = m[4] + "_" + m[5]
	} else {
		return Pid{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	ts, err := time.Parse(p.TimestampLayout, stamp)
	if err != nil {
		return Pid{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	p.Timestamp = ts.UTC()
	if p.Instrument, err = strconv.Atoi(instrument); err != nil {
		return Pid{}, fmt.Errorf("%w: %q: instrument %v", ErrInvalid, s, err)
	}

	m := suffixes.FindStringSubmatch(rest)
	p.LID = p.BinLID
	if m[1] != "" {
		if p.Target, err = strconv.Atoi(m[1]); err != nil {
			return Pid{}, fmt.Errorf("%w: %q: target %v", ErrInvalid, s, err)
		}
		p.LID += "_" + m[1]
	}
	p.Product = m[2]
	if p.Product == "" {
		p.Product = DefaultProduct
	}
	p.Extension = m[3]
	return p, nil
}

// MustParse is like Parse but panics on error. It is intended for
// identifiers known to be valid, such as constants in tests.
func MustParse(s string) Pid {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether s parses as a bin identifier.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the identifier as parsed, minus Windows directories.
func (p Pid) String() string {
	return p.pid
}

// IsZero reports whether p is the zero Pid.
func (p Pid) IsZero() bool {
	return p.pid == ""
}

// TargetLID returns the identifier of target n (1-based) of the bin.
func (p Pid) TargetLID(n int) string {
	return fmt.Sprintf("%s_%05d", p.BinLID, n)
}

// Compare orders identifiers by their string form.
func Compare(a, b Pid) int {
	return strings.Compare(a.pid, b.pid)
}

// Sort sorts identifiers in place by their string form.
func Sort(pids []Pid) {
	slices.SortFunc(pids, Compare)
}
