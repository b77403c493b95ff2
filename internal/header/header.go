// Package header parses and serializes the textual run header of a bin.
//
// The header is kept as its original lines so that an unmodified header
// serializes back to the exact input bytes. Only the target-count line is
// ever re-rendered, and only through WithTargetCount.
package header

import (
	"bytes"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/meigma/ifcb/internal/bintype"
)

// Required keys. Lookups are case-insensitive.
const (
	KeySchemaVersion = "schemaVersion"
	KeyTargetCount   = "targetCount"
)

const utf8BOM = "\ufeff"

type lineKind uint8

const (
	lineBlank lineKind = iota
	lineComment
	linePair
)

type line struct {
	raw        string
	eol        string
	kind       lineKind
	key        string
	value      string
	valueStart int
	valueEnd   int
}

// Header is the parsed run metadata of one bin.
//
// A Header is immutable; WithTargetCount returns a modified copy.
type Header struct {
	bom           bool
	lines         []line
	keys          map[string]int // lower-cased key -> first line index
	schemaVersion int
	targetCount   int
	countLine     int
}

// Parse parses header text.
//
// Blank lines and lines starting with '#' or ';' are preserved but not
// interpreted. Every other line must be "key: value" or "key = value"; the
// first ':' or '=' in the line is the delimiter. Unknown keys are kept
// verbatim.
func Parse(data []byte) (*Header, error) {
	h := &Header{keys: make(map[string]int)}
	if bytes.HasPrefix(data, []byte(utf8BOM)) {
		h.bom = true
		data = data[len(utf8BOM):]
	}

	lineNo := 0
	for len(data) > 0 {
		lineNo++
		var raw, eol string
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			raw, eol = string(data[:i]), "\n"
			data = data[i+1:]
			if strings.HasSuffix(raw, "\r") {
				raw, eol = raw[:len(raw)-1], "\r\n"
			}
		} else {
			raw = string(data)
			data = nil
		}

		l, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}
		l.eol = eol
		if l.kind == linePair {
			lk := strings.ToLower(l.key)
			if _, dup := h.keys[lk]; !dup {
				h.keys[lk] = len(h.lines)
			}
		}
		h.lines = append(h.lines, l)
	}

	version, _, err := h.requiredInt(KeySchemaVersion)
	if err != nil {
		return nil, err
	}
	count, countLine, err := h.requiredInt(KeyTargetCount)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrTypeMismatch)
		fe.Line = countLine + 1
		fe.Key = KeyTargetCount
		fe.Expected = "non-negative integer"
		fe.Actual = strconv.Itoa(count)
		return nil, fe
	}
	h.schemaVersion = version
	h.targetCount = count
	h.countLine = countLine
	return h, nil
}

func parseLine(raw string, lineNo int) (line, error) {
	if !utf8.ValidString(raw) {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrMalformedLine)
		fe.Line = lineNo
		fe.Expected = "UTF-8 text"
		fe.Actual = "invalid byte sequence"
		return line{}, fe
	}
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return line{raw: raw, kind: lineBlank}, nil
	case trimmed[0] == '#' || trimmed[0] == ';':
		return line{raw: raw, kind: lineComment}, nil
	}

	delim := strings.IndexAny(raw, ":=")
	key := ""
	if delim >= 0 {
		key = strings.TrimSpace(raw[:delim])
	}
	if key == "" {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrMalformedLine)
		fe.Line = lineNo
		fe.Expected = `"key: value" or "key = value"`
		fe.Actual = strconv.Quote(raw)
		return line{}, fe
	}

	rest := raw[delim+1:]
	start := delim + 1 + len(rest) - len(strings.TrimLeft(rest, " \t"))
	value := strings.TrimRight(raw[start:], " \t")
	return line{
		raw:        raw,
		kind:       linePair,
		key:        key,
		value:      value,
		valueStart: start,
		valueEnd:   start + len(value),
	}, nil
}

func (h *Header) requiredInt(key string) (int, int, error) {
	idx, ok := h.keys[strings.ToLower(key)]
	if !ok {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrMissingRequiredKey)
		fe.Key = key
		return 0, -1, fe
	}
	l := h.lines[idx]
	n, err := strconv.Atoi(l.value)
	if err != nil {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrTypeMismatch)
		fe.Line = idx + 1
		fe.Key = l.key
		fe.Expected = "integer"
		fe.Actual = strconv.Quote(l.value)
		return 0, idx, fe
	}
	return n, idx, nil
}

// SchemaVersion returns the declared schema version.
func (h *Header) SchemaVersion() int {
	return h.schemaVersion
}

// TargetCount returns the declared target count.
func (h *Header) TargetCount() int {
	return h.targetCount
}

// Get returns the value of key. Lookup is case-insensitive; when a key is
// repeated the first occurrence wins.
func (h *Header) Get(key string) (string, bool) {
	idx, ok := h.keys[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	return h.lines[idx].value, true
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.keys[strings.ToLower(key)]
	return ok
}

// Int returns the value of key parsed as an integer.
func (h *Header) Int(key string) (int64, error) {
	v, err := h.lookup(key)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil {
		return 0, h.typeError(key, "integer", v)
	}
	return n, nil
}

// Float returns the value of key parsed as a number.
func (h *Header) Float(key string) (float64, error) {
	v, err := h.lookup(key)
	if err != nil {
		return 0, err
	}
	f, perr := strconv.ParseFloat(v, 64)
	if perr != nil {
		return 0, h.typeError(key, "number", v)
	}
	return f, nil
}

// List returns the value of key split on sep with each element trimmed.
// An empty value yields an empty list.
func (h *Header) List(key, sep string) ([]string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return nil, false
	}
	if v == "" {
		return []string{}, true
	}
	parts := strings.Split(v, sep)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, true
}

// All returns an iterator over key/value pairs in file order, including
// repeated keys.
func (h *Header) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, l := range h.lines {
			if l.kind != linePair {
				continue
			}
			if !yield(l.key, l.value) {
				return
			}
		}
	}
}

// Len returns the number of key/value lines.
func (h *Header) Len() int {
	n := 0
	for _, l := range h.lines {
		if l.kind == linePair {
			n++
		}
	}
	return n
}

// WithTargetCount returns a copy of h declaring n targets.
//
// Only the value text of the target-count line changes; key spelling,
// delimiter, spacing, trailing whitespace and line ending are kept.
func (h *Header) WithTargetCount(n int) *Header {
	if n < 0 {
		panic(fmt.Sprintf("header: negative target count %d", n))
	}
	c := *h
	c.lines = make([]line, len(h.lines))
	copy(c.lines, h.lines)

	l := c.lines[h.countLine]
	value := strconv.Itoa(n)
	l.raw = l.raw[:l.valueStart] + value + l.raw[l.valueEnd:]
	l.value = value
	l.valueEnd = l.valueStart + len(value)
	c.lines[h.countLine] = l
	c.targetCount = n
	return &c
}

// Bytes serializes the header. For a header returned by Parse the output is
// byte-identical to the parsed input.
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	if h.bom {
		buf.WriteString(utf8BOM)
	}
	for _, l := range h.lines {
		buf.WriteString(l.raw)
		buf.WriteString(l.eol)
	}
	return buf.Bytes()
}

func (h *Header) lookup(key string) (string, error) {
	v, ok := h.Get(key)
	if !ok {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrMissingRequiredKey)
		fe.Key = key
		return "", fe
	}
	return v, nil
}

func (h *Header) typeError(key, expected, actual string) error {
	fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrTypeMismatch)
	idx := h.keys[strings.ToLower(key)]
	fe.Line = idx + 1
	fe.Key = h.lines[idx].key
	fe.Expected = expected
	fe.Actual = strconv.Quote(actual)
	return fe
}
