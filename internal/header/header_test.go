package header

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ifcb/internal/bintype"
)

const sample = "# IFCB run header\r\n" +
	"softwareVersion: Imaging FlowCytobot Acquire 1.0.0.0\r\n" +
	"schemaVersion: 2\r\n" +
	"targetCount:   3  \r\n" +
	"\r\n" +
	"ADCFileFormat: trigger#, ADC_time, PMTA, PMTB\r\n" +
	"temperature = 21.5\r\n" +
	"runTime: 00:20:01"

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"crlf no final newline": sample,
		"lf final newline":      "schemaVersion: 1\ntargetCount: 0\n",
		"bom":                   "\ufeffschemaVersion=2\ntargetCount=1\n",
		"comments only extra":   "; legacy\nSCHEMAVERSION: 2\n\n\nTargetCount: 10\n# trailing\n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h, err := Parse([]byte(in))
			require.NoError(t, err)
			assert.Equal(t, in, string(h.Bytes()))
		})
	}
}

func TestParse_Values(t *testing.T) {
	t.Parallel()

	h, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 2, h.SchemaVersion())
	assert.Equal(t, 3, h.TargetCount())
	assert.Equal(t, 6, h.Len())

	v, ok := h.Get("SOFTWAREVERSION")
	require.True(t, ok)
	assert.Equal(t, "Imaging FlowCytobot Acquire 1.0.0.0", v)

	temp, err := h.Float("temperature")
	require.NoError(t, err)
	assert.InDelta(t, 21.5, temp, 1e-9)

	runTime, ok := h.Get("runTime")
	require.True(t, ok)
	assert.Equal(t, "00:20:01", runTime)

	list, ok := h.List("ADCFileFormat", ",")
	require.True(t, ok)
	assert.Equal(t, []string{"trigger#", "ADC_time", "PMTA", "PMTB"}, list)

	_, ok = h.List("missing", ",")
	assert.False(t, ok)

	keys := make([]string, 0)
	for k := range h.All() {
		keys = append(keys, k)
	}
	assert.True(t, slices.Contains(keys, "ADCFileFormat"))
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr error
		line    int
		key     string
	}{
		{
			name:    "missing version",
			in:      "targetCount: 3\n",
			wantErr: bintype.ErrMissingRequiredKey,
			key:     KeySchemaVersion,
		},
		{
			name:    "missing count",
			in:      "schemaVersion: 2\n",
			wantErr: bintype.ErrMissingRequiredKey,
			key:     KeyTargetCount,
		},
		{
			name:    "malformed line",
			in:      "schemaVersion: 2\njust some words\ntargetCount: 1\n",
			wantErr: bintype.ErrMalformedLine,
			line:    2,
		},
		{
			name:    "empty key",
			in:      "schemaVersion: 2\n: orphan\ntargetCount: 1\n",
			wantErr: bintype.ErrMalformedLine,
			line:    2,
		},
		{
			name:    "non-integer count",
			in:      "schemaVersion: 2\ntargetCount: many\n",
			wantErr: bintype.ErrTypeMismatch,
			line:    2,
			key:     "targetCount",
		},
		{
			name:    "negative count",
			in:      "schemaVersion: 2\ntargetCount: -1\n",
			wantErr: bintype.ErrTypeMismatch,
			line:    2,
			key:     KeyTargetCount,
		},
		{
			name:    "invalid utf8",
			in:      "schemaVersion: 2\ntargetCount: 1\nnote: \xff\n",
			wantErr: bintype.ErrMalformedLine,
			line:    3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.in))
			require.ErrorIs(t, err, tt.wantErr)

			var fe *bintype.FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, bintype.ArtifactHeader, fe.Artifact)
			assert.Equal(t, tt.line, fe.Line)
			assert.Equal(t, tt.key, fe.Key)
		})
	}
}

func TestWithTargetCount(t *testing.T) {
	t.Parallel()

	h, err := Parse([]byte(sample))
	require.NoError(t, err)

	h2 := h.WithTargetCount(12)
	assert.Equal(t, 12, h2.TargetCount())
	assert.Equal(t, 3, h.TargetCount(), "original must not change")
	assert.Equal(t, sample, string(h.Bytes()))

	want := "# IFCB run header\r\n" +
		"softwareVersion: Imaging FlowCytobot Acquire 1.0.0.0\r\n" +
		"schemaVersion: 2\r\n" +
		"targetCount:   12  \r\n" +
		"\r\n" +
		"ADCFileFormat: trigger#, ADC_time, PMTA, PMTB\r\n" +
		"temperature = 21.5\r\n" +
		"runTime: 00:20:01"
	assert.Equal(t, want, string(h2.Bytes()))

	reparsed, err := Parse(h2.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 12, reparsed.TargetCount())
}

func TestHeader_TypedAccessorErrors(t *testing.T) {
	t.Parallel()

	h, err := Parse([]byte("schemaVersion: 2\ntargetCount: 1\nhumidity: damp\n"))
	require.NoError(t, err)

	_, err = h.Float("humidity")
	require.ErrorIs(t, err, bintype.ErrTypeMismatch)

	_, err = h.Int("absent")
	require.ErrorIs(t, err, bintype.ErrMissingRequiredKey)

	n, err := h.Int("targetcount")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, h.Has("HUMIDITY"))
}
