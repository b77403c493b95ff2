// Package table parses and serializes the per-target feature table of a bin.
package table

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/schema"
)

// Row is one parsed feature-table row.
type Row struct {
	desc   *schema.Descriptor
	values []Value
}

// Len returns the number of fields in the row.
func (r Row) Len() int {
	return len(r.values)
}

// At returns the field at column position i.
func (r Row) At(i int) Value {
	return r.values[i]
}

// Get returns the field for the named column.
func (r Row) Get(name string) (Value, bool) {
	i := r.desc.ColumnIndex(name)
	if i < 0 {
		return Value{}, false
	}
	return r.values[i], true
}

// Width returns the image width declared by the row.
func (r Row) Width() int64 {
	return r.values[r.desc.WidthIndex()].i
}

// Height returns the image height declared by the row.
func (r Row) Height() int64 {
	return r.values[r.desc.HeightIndex()].i
}

// Map returns the row as column name -> int64, float64 or string.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, c := range r.desc.Columns {
		m[c.Name] = r.values[i].Any()
	}
	return m
}

// Equal reports whether two rows hold the same field text.
func (r Row) Equal(o Row) bool {
	if len(r.values) != len(o.values) {
		return false
	}
	for i := range r.values {
		if r.values[i].raw != o.values[i].raw {
			return false
		}
	}
	return true
}

// Table is the ordered sequence of feature rows of one bin.
type Table struct {
	desc *schema.Descriptor
	rows []Row
	raw  []string
	eols []string
}

// Parse parses table text against the column layout of d.
//
// Rows are parsed positionally; the field count of every row must equal the
// descriptor's column count. A blank line, trailing or not, is a row like any
// other and fails that check.
func Parse(data []byte, d *schema.Descriptor) (*Table, error) {
	t := &Table{desc: d}
	for len(data) > 0 {
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

		row, err := parseRow(raw, len(t.rows), d)
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, row)
		t.raw = append(t.raw, raw)
		t.eols = append(t.eols, eol)
	}
	return t, nil
}

func parseRow(raw string, rowIdx int, d *schema.Descriptor) (Row, error) {
	fields := strings.Split(raw, d.Delimiter)
	if len(fields) != len(d.Columns) {
		fe := bintype.NewFormatError(bintype.ArtifactTable, bintype.ErrSchemaMismatch)
		fe.Line = rowIdx + 1
		fe.Row = rowIdx
		fe.Expected = fmt.Sprintf("%d columns (schema v%d)", len(d.Columns), d.Version)
		fe.Actual = strconv.Itoa(len(fields))
		return Row{}, fe
	}

	values := make([]Value, len(fields))
	for i, field := range fields {
		col := d.Columns[i]
		text := strings.TrimSpace(field)
		v := Value{raw: field, kind: col.Type}
		var err error
		switch col.Type {
		case schema.Int:
			v.i, err = strconv.ParseInt(text, 10, 64)
		case schema.Float:
			v.f, err = strconv.ParseFloat(text, 64)
		}
		if err != nil {
			return Row{}, typeError(rowIdx, col.Name, col.Type.String(), text)
		}
		values[i] = v
	}

	for _, i := range []int{d.WidthIndex(), d.HeightIndex()} {
		if values[i].i < 0 {
			return Row{}, typeError(rowIdx, d.Columns[i].Name, "non-negative integer", strings.TrimSpace(values[i].raw))
		}
	}
	return Row{desc: d, values: values}, nil
}

func typeError(rowIdx int, column, expected, actual string) error {
	fe := bintype.NewFormatError(bintype.ArtifactTable, bintype.ErrTypeMismatch)
	fe.Line = rowIdx + 1
	fe.Row = rowIdx
	fe.Column = column
	fe.Expected = expected
	fe.Actual = strconv.Quote(actual)
	return fe
}

// Descriptor returns the schema the table was parsed under.
func (t *Table) Descriptor() *schema.Descriptor {
	return t.desc
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns row i.
func (t *Table) Row(i int) (Row, error) {
	if i < 0 || i >= len(t.rows) {
		fe := bintype.NewFormatError(bintype.ArtifactTable, bintype.ErrIndexOutOfRange)
		fe.Expected = fmt.Sprintf("0 <= index < %d", len(t.rows))
		fe.Actual = strconv.Itoa(i)
		return Row{}, fe
	}
	return t.rows[i], nil
}

// Subset returns a table holding the given rows, in the given order.
//
// Row text is retained verbatim. A row that was the unterminated last line
// of t gets the table's line ending when it is no longer last.
func (t *Table) Subset(indices []int) (*Table, error) {
	s := &Table{
		desc: t.desc,
		rows: make([]Row, 0, len(indices)),
		raw:  make([]string, 0, len(indices)),
		eols: make([]string, 0, len(indices)),
	}
	eol := t.lineEnding()
	for n, i := range indices {
		if _, err := t.Row(i); err != nil {
			return nil, err
		}
		e := t.eols[i]
		if e == "" && n < len(indices)-1 {
			e = eol
		}
		s.rows = append(s.rows, t.rows[i])
		s.raw = append(s.raw, t.raw[i])
		s.eols = append(s.eols, e)
	}
	return s, nil
}

// Bytes serializes the table. For a table returned by Parse the output is
// byte-identical to the parsed input.
func (t *Table) Bytes() []byte {
	var buf bytes.Buffer
	for i, raw := range t.raw {
		buf.WriteString(raw)
		buf.WriteString(t.eols[i])
	}
	return buf.Bytes()
}

// lineEnding returns the first line ending used by the table, or "\n".
func (t *Table) lineEnding() string {
	for _, e := range t.eols {
		if e != "" {
			return e
		}
	}
	return "\n"
}
