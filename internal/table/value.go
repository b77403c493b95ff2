package table

import (
	"strconv"

	"github.com/meigma/ifcb/internal/schema"
)

// Value is one coerced feature-table field.
//
// The original text is retained so rows serialize back unchanged.
type Value struct {
	raw  string
	kind schema.ColumnType
	i    int64
	f    float64
}

// Raw returns the field text as it appeared in the table.
func (v Value) Raw() string {
	return v.raw
}

// Kind returns the column type the value was coerced to.
func (v Value) Kind() schema.ColumnType {
	return v.kind
}

// Int returns the value as an integer. Float values are truncated and
// string values return zero.
func (v Value) Int() int64 {
	switch v.kind {
	case schema.Int:
		return v.i
	case schema.Float:
		return int64(v.f)
	default:
		return 0
	}
}

// Float returns the value as a float. String values return zero.
func (v Value) Float() float64 {
	switch v.kind {
	case schema.Int:
		return float64(v.i)
	case schema.Float:
		return v.f
	default:
		return 0
	}
}

// Any returns the value as int64, float64 or string according to its kind.
func (v Value) Any() any {
	switch v.kind {
	case schema.Int:
		return v.i
	case schema.Float:
		return v.f
	default:
		return v.raw
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case schema.Int:
		return strconv.FormatInt(v.i, 10)
	case schema.Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.raw
	}
}
