package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ifcb/internal/bintype"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version    int
		columns    int
		widthIdx   int
		heightIdx  int
		bytesPerPx int
	}{
		{version: 1, columns: 14, widthIdx: 11, heightIdx: 12, bytesPerPx: 1},
		{version: 2, columns: 23, widthIdx: 15, heightIdx: 16, bytesPerPx: 1},
	}
	for _, tt := range tests {
		d, err := Resolve(tt.version)
		require.NoError(t, err)
		assert.Equal(t, tt.version, d.Version)
		assert.Len(t, d.Columns, tt.columns)
		assert.Equal(t, tt.widthIdx, d.WidthIndex())
		assert.Equal(t, tt.heightIdx, d.HeightIndex())
		assert.Equal(t, tt.bytesPerPx, d.BytesPerPixel)
		assert.Equal(t, "roiWidth", d.Columns[d.WidthIndex()].Name)
	}
}

func TestResolve_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := Resolve(7)
	require.ErrorIs(t, err, bintype.ErrUnsupportedVersion)

	var fe *bintype.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "7", fe.Actual)
	assert.Equal(t, "one of [1 2]", fe.Expected)
}

func TestVersions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{1, 2}, Versions())
}

func TestDescriptor_ColumnIndex(t *testing.T) {
	t.Parallel()

	d, err := Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ColumnIndex("trigger"))
	assert.Equal(t, -1, d.ColumnIndex("startByte"))
	assert.Equal(t, "inhibitTime", d.ColumnNames()[22])
}
