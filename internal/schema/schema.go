// Package schema holds the closed registry of feature-table layouts.
//
// Each instrument wire revision fixes the ordered column set of the feature
// table, the pixel encoding and the two columns that size each target image.
// Versions are resolved once per bin load; an unknown version is a hard
// failure because guessing a layout silently corrupts every derived offset.
package schema

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/meigma/ifcb/internal/bintype"
)

// ColumnType is the value type of a feature-table column.
type ColumnType uint8

const (
	Float ColumnType = iota
	Int
	String
)

// String returns the human-readable name of the column type.
func (t ColumnType) String() string {
	switch t {
	case Float:
		return "number"
	case Int:
		return "integer"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Column describes one feature-table column.
type Column struct {
	Name string
	Type ColumnType
}

// Descriptor fixes the layout of one schema version.
//
// Descriptors returned by Resolve are shared and must be treated as read-only.
type Descriptor struct {
	// Version is the schema version number declared in headers.
	Version int

	// Columns is the exact ordered column set of every table row.
	Columns []Column

	// BytesPerPixel is the size of one pixel in the pixel blob.
	BytesPerPixel int

	// WidthColumn and HeightColumn name the columns that size each image.
	WidthColumn  string
	HeightColumn string

	// Delimiter separates fields within a table row.
	Delimiter string

	// ListSeparator separates elements of list-valued header keys.
	ListSeparator string

	widthIdx  int
	heightIdx int
	byName    map[string]int
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Descriptor) ColumnIndex(name string) int {
	if i, ok := d.byName[name]; ok {
		return i
	}
	return -1
}

// WidthIndex returns the position of the width column.
func (d *Descriptor) WidthIndex() int {
	return d.widthIdx
}

// HeightIndex returns the position of the height column.
func (d *Descriptor) HeightIndex() int {
	return d.heightIdx
}

// ColumnNames returns the ordered column names.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Resolve returns the descriptor registered for version.
func Resolve(version int) (*Descriptor, error) {
	d, ok := registry[version]
	if !ok {
		fe := bintype.NewFormatError(bintype.ArtifactHeader, bintype.ErrUnsupportedVersion)
		fe.Key = "schemaVersion"
		fe.Expected = fmt.Sprintf("one of %v", Versions())
		fe.Actual = strconv.Itoa(version)
		return nil, fe
	}
	return d, nil
}

// Versions returns the registered schema versions in ascending order.
func Versions() []int {
	versions := make([]int, 0, len(registry))
	for v := range registry {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

var registry = map[int]*Descriptor{
	1: mustDescriptor(Descriptor{
		Version: 1,
		Columns: []Column{
			{"trigger", Int},
			{"processingEndTime", Float},
			{"fluorescenceLow", Float},
			{"fluorescenceHigh", Float},
			{"scatteringLow", Float},
			{"scatteringHigh", Float},
			{"comparatorPulse", Float},
			{"triggerOpenTime", Float},
			{"frameGrabTime", Float},
			{"roiX", Int},
			{"roiY", Int},
			{"roiWidth", Int},
			{"roiHeight", Int},
			{"valveStatus", Float},
		},
		BytesPerPixel: 1,
		WidthColumn:   "roiWidth",
		HeightColumn:  "roiHeight",
		Delimiter:     ",",
		ListSeparator: ",",
	}),
	2: mustDescriptor(Descriptor{
		Version: 2,
		Columns: []Column{
			{"trigger", Int},
			{"adcTime", Float},
			{"pmtA", Float},
			{"pmtB", Float},
			{"pmtC", Float},
			{"pmtD", Float},
			{"peakA", Float},
			{"peakB", Float},
			{"peakC", Float},
			{"peakD", Float},
			{"timeOfFlight", Float},
			{"grabTimeStart", Float},
			{"grabTimeEnd", Float},
			{"roiX", Int},
			{"roiY", Int},
			{"roiWidth", Int},
			{"roiHeight", Int},
			{"comparatorOut", Float},
			{"startPoint", Float},
			{"signalLength", Float},
			{"status", Float},
			{"runTime", Float},
			{"inhibitTime", Float},
		},
		BytesPerPixel: 1,
		WidthColumn:   "roiWidth",
		HeightColumn:  "roiHeight",
		Delimiter:     ",",
		ListSeparator: ",",
	}),
}

// mustDescriptor indexes d and panics on an inconsistent static definition.
func mustDescriptor(d Descriptor) *Descriptor {
	d.byName = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		if _, dup := d.byName[c.Name]; dup {
			panic("schema: duplicate column " + c.Name)
		}
		d.byName[c.Name] = i
	}
	d.widthIdx = d.ColumnIndex(d.WidthColumn)
	d.heightIdx = d.ColumnIndex(d.HeightColumn)
	if d.widthIdx < 0 || d.heightIdx < 0 {
		panic("schema: dimension column missing from version " + strconv.Itoa(d.Version))
	}
	if d.Columns[d.widthIdx].Type != Int || d.Columns[d.heightIdx].Type != Int {
		panic("schema: dimension columns must be integers")
	}
	if d.BytesPerPixel <= 0 {
		panic("schema: bytes per pixel must be positive")
	}
	return &d
}
