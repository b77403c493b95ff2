package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dims is the image size of one fixture target.
type Dims struct {
	Width  int
	Height int
}

// Fixture builds the header, feature table and pixel blob of a bin.
//
// Pixel bytes are deterministic: byte j of target i is (i*31 + j) % 251, so
// every target's content differs from its neighbours.
type Fixture struct {
	SchemaVersion int
	Targets       []Dims

	// Newline terminates every header and table line. Defaults to "\r\n".
	Newline string

	// ExtraHeader lines are emitted verbatim after the required keys.
	ExtraHeader []string

	// CountOverride, when non-nil, replaces the declared target count.
	CountOverride *int
}

// NewFixture returns a schema v2 fixture for the given targets.
func NewFixture(targets ...Dims) *Fixture {
	return &Fixture{SchemaVersion: 2, Targets: targets}
}

func (f *Fixture) newline() string {
	if f.Newline == "" {
		return "\r\n"
	}
	return f.Newline
}

// Header returns the header text.
func (f *Fixture) Header() []byte {
	nl := f.newline()
	count := len(f.Targets)
	if f.CountOverride != nil {
		count = *f.CountOverride
	}
	var b strings.Builder
	b.WriteString("softwareVersion: Imaging FlowCytobot Acquire 2.0.0.0" + nl)
	fmt.Fprintf(&b, "schemaVersion: %d%s", f.SchemaVersion, nl)
	fmt.Fprintf(&b, "targetCount: %d%s", count, nl)
	for _, line := range f.ExtraHeader {
		b.WriteString(line + nl)
	}
	return []byte(b.String())
}

// Table returns the feature table text.
func (f *Fixture) Table() []byte {
	nl := f.newline()
	var b strings.Builder
	for i, d := range f.Targets {
		b.WriteString(Row(f.SchemaVersion, i+1, d.Width, d.Height))
		b.WriteString(nl)
	}
	return []byte(b.String())
}

// Blob returns the pixel blob.
func (f *Fixture) Blob() []byte {
	var blob []byte
	for i, d := range f.Targets {
		blob = append(blob, Pixels(i, d.Width*d.Height)...)
	}
	return blob
}

// Pixels returns the deterministic pixel bytes of target i.
func Pixels(i, n int) []byte {
	p := make([]byte, n)
	for j := range p {
		p[j] = byte((i*31 + j) % 251)
	}
	return p
}

// Row renders one feature-table row for the given schema version.
// Versions other than 1 render the version 2 layout.
func Row(version, trigger, width, height int) string {
	if version == 1 {
		return fmt.Sprintf("%d,0.5,0.01,0.02,0.03,0.04,0.05,1.25,1.5,12,34,%d,%d,0", trigger, width, height)
	}
	return fmt.Sprintf("%d,%d.25,0.011,0.012,0.013,0.014,0.021,0.022,0.023,0.024,37,%d.1,%d.2,120,48,%d,%d,0,0,0,0,%d.5,%d.75",
		trigger, trigger, trigger, trigger, width, height, trigger, trigger)
}

// Paths names the three artifact files of a written fixture.
type Paths struct {
	Header string
	Table  string
	Blob   string
}

// WriteFiles writes the fixture into dir as <lid>.hdr, <lid>.adc and <lid>.roi.
func (f *Fixture) WriteFiles(dir, lid string) (Paths, error) {
	p := Paths{
		Header: filepath.Join(dir, lid+".hdr"),
		Table:  filepath.Join(dir, lid+".adc"),
		Blob:   filepath.Join(dir, lid+".roi"),
	}
	for path, data := range map[string][]byte{
		p.Header: f.Header(),
		p.Table:  f.Table(),
		p.Blob:   f.Blob(),
	} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

// Scenario returns the three-target fixture (10x10, 5x4, 8x8) whose pixel
// blob is 184 bytes long.
func Scenario() *Fixture {
	return NewFixture(Dims{10, 10}, Dims{5, 4}, Dims{8, 8})
}
