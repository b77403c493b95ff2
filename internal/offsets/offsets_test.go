package offsets

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ifcb/internal/bintype"
)

func threeTargets() []Dims {
	return []Dims{{10, 10}, {5, 4}, {8, 8}}
}

func TestBuild_ThreeTargets(t *testing.T) {
	t.Parallel()

	idx, err := Build(threeTargets(), 1)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())
	assert.Equal(t, int64(184), idx.Total())

	var offs, lens []int64
	for _, r := range idx.Ranges() {
		offs = append(offs, r.Offset)
		lens = append(lens, r.Length)
	}
	assert.Equal(t, []int64{0, 100, 120}, offs)
	assert.Equal(t, []int64{100, 20, 64}, lens)
}

func TestBuild_Monotonic(t *testing.T) {
	t.Parallel()

	dims := []Dims{{3, 7}, {0, 0}, {0, 9}, {1, 1}, {640, 480}, {2, 0}, {13, 17}}
	for _, bpp := range []int{1, 2} {
		idx, err := Build(dims, bpp)
		require.NoError(t, err)

		var prev Range
		for i, r := range idx.Ranges() {
			assert.Equal(t, dims[i].Width*dims[i].Height*int64(bpp), r.Length)
			if i == 0 {
				assert.Zero(t, r.Offset)
			} else {
				assert.Equal(t, prev.End(), r.Offset)
			}
			prev = r
		}
		assert.Equal(t, prev.End(), idx.Total())
	}
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	idx, err := Build(nil, 1)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Zero(t, idx.Total())
	require.NoError(t, idx.Validate(0))
}

func TestBuild_Overflow(t *testing.T) {
	t.Parallel()

	_, err := Build([]Dims{{math.MaxInt64 / 2, 3}}, 1)
	require.ErrorIs(t, err, bintype.ErrSizeOverflow)

	_, err = Build([]Dims{{math.MaxInt32, math.MaxInt32}, {math.MaxInt32, math.MaxInt32}, {math.MaxInt32, math.MaxInt32}}, 2)
	require.ErrorIs(t, err, bintype.ErrSizeOverflow)

	var fe *bintype.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Row)
}

func TestIndex_Validate(t *testing.T) {
	t.Parallel()

	idx, err := Build(threeTargets(), 1)
	require.NoError(t, err)

	require.NoError(t, idx.Validate(184))
	for _, size := range []int64{183, 185, 0} {
		err := idx.Validate(size)
		require.ErrorIs(t, err, bintype.ErrBlobSizeMismatch, "size %d", size)

		var fe *bintype.FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "184 bytes", fe.Expected)
	}
}

func TestIndex_Range(t *testing.T) {
	t.Parallel()

	idx, err := Build(threeTargets(), 1)
	require.NoError(t, err)

	r, err := idx.Range(2)
	require.NoError(t, err)
	assert.Equal(t, Range{Offset: 120, Length: 64}, r)

	_, err = idx.Range(3)
	require.ErrorIs(t, err, bintype.ErrIndexOutOfRange)
	_, err = idx.Range(-1)
	require.ErrorIs(t, err, bintype.ErrIndexOutOfRange)
}

func TestIndex_ConsistentPrefix(t *testing.T) {
	t.Parallel()

	idx, err := Build(threeTargets(), 1)
	require.NoError(t, err)

	tests := []struct {
		size int64
		want int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{183, 2},
		{184, 3},
		{1000, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idx.ConsistentPrefix(tt.size), "size %d", tt.size)
	}

	short := idx.Truncate(2)
	assert.Equal(t, 2, short.Len())
	assert.Equal(t, int64(120), short.Total())
	assert.Equal(t, int64(184), idx.Total())
}
