package pixels

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/testutil"
)

func TestReader_Read(t *testing.T) {
	t.Parallel()

	blob := testutil.Scenario().Blob()
	require.Len(t, blob, 184)
	r := NewReader(testutil.NewMockSource(blob))

	got, err := r.Read(100, 20)
	require.NoError(t, err)
	assert.Equal(t, blob[100:120], got)

	empty, err := r.Read(184, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	sec, err := r.Section(120, 64)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(sec)
	require.NoError(t, err)
	assert.Equal(t, blob[120:], buf.Bytes())
}

func TestReader_Bounds(t *testing.T) {
	t.Parallel()

	r := NewReader(testutil.NewMockSource(make([]byte, 10)), WithMaxReadSize(4))

	tests := []struct {
		name    string
		off     int64
		length  int64
		wantErr error
	}{
		{"past end", 8, 3, bintype.ErrIndexOutOfRange},
		{"negative offset", -1, 2, bintype.ErrIndexOutOfRange},
		{"negative length", 2, -1, bintype.ErrIndexOutOfRange},
		{"over read limit", 0, 5, bintype.ErrSizeOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Read(tt.off, tt.length)
			require.ErrorIs(t, err, tt.wantErr)

			var fe *bintype.FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, bintype.ArtifactBlob, fe.Artifact)
		})
	}
}

func TestReader_Concurrent(t *testing.T) {
	t.Parallel()

	blob := testutil.Scenario().Blob()
	r := NewReader(Serialized(testutil.NewMockSource(blob)))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Go(func() {
			off := int64(i % 3 * 60)
			got, err := r.Read(off, 20)
			assert.NoError(t, err)
			assert.Equal(t, blob[off:off+20], got)
		})
	}
	wg.Wait()
}

func chunks(parts ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestWriter_WriteSequence(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	offs, n, err := w.WriteSequence(context.Background(), chunks(
		bytes.Repeat([]byte{1}, 100),
		bytes.Repeat([]byte{2}, 20),
		nil,
		bytes.Repeat([]byte{3}, 64),
	))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 100, 120, 120}, offs)
	assert.Equal(t, int64(184), n)
	assert.Equal(t, int64(184), w.Written())
	assert.Equal(t, 184, buf.Len())

	off, err := w.Append([]byte{9})
	require.NoError(t, err)
	assert.Equal(t, int64(184), off)
}

func TestWriter_WriteSequenceCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	seq := func(yield func([]byte, error) bool) {
		if !yield([]byte{1, 2}, nil) {
			return
		}
		cancel()
		yield([]byte{3}, nil)
	}

	var buf bytes.Buffer
	offs, n, err := NewWriter(&buf).WriteSequence(ctx, seq)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{0}, offs)
	assert.Equal(t, int64(2), n)

	boom := errors.New("boom")
	_, _, err = NewWriter(&buf).WriteSequence(context.Background(), func(yield func([]byte, error) bool) {
		yield(nil, boom)
	})
	require.ErrorIs(t, err, boom)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blob := testutil.Scenario().Blob()
	path := filepath.Join(dir, "D20160714T023910_IFCB101.roi")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	h, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(184), h.Source().Size())
	assert.Contains(t, h.Source().SourceID(), "D20160714T023910_IFCB101.roi")

	got, err := NewReader(h.Source()).Read(120, 64)
	require.NoError(t, err)
	assert.Equal(t, blob[120:], got)

	require.True(t, h.Acquire())
	require.NoError(t, h.Release())
	assert.Equal(t, 1, h.Refs())
	require.NoError(t, h.Release())
	assert.False(t, h.Acquire())

	_, err = NewReader(h.Source()).Read(0, 1)
	require.Error(t, err)

	_, err = OpenFile(filepath.Join(dir, "missing.roi"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenFile_Zstd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blob := testutil.Scenario().Blob()
	compressed, err := testutil.Compress(blob)
	require.NoError(t, err)
	path := filepath.Join(dir, "bin.roi.zst")
	require.NoError(t, os.WriteFile(path, compressed, 0o600))

	spoolDir := t.TempDir()
	h, err := OpenFile(path, WithTempDir(spoolDir))
	require.NoError(t, err)
	assert.Equal(t, int64(len(blob)), h.Source().Size())

	got, err := NewReader(h.Source()).Read(100, 20)
	require.NoError(t, err)
	assert.Equal(t, blob[100:120], got)

	spool := h.Source().(*fileSource).file.Name()
	assert.Equal(t, spoolDir, filepath.Dir(spool))
	require.NoError(t, h.Release())
	_, err = os.Stat(spool)
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	text := []byte("schemaVersion: 2\r\ntargetCount: 0\r\n")
	compressed, err := testutil.Compress(text)
	require.NoError(t, err)

	plain := filepath.Join(dir, "a.hdr")
	packed := filepath.Join(dir, "a.hdr.zst")
	require.NoError(t, os.WriteFile(plain, text, 0o600))
	require.NoError(t, os.WriteFile(packed, compressed, 0o600))

	for _, p := range []string{plain, packed} {
		got, err := ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}

	_, err = ReadFile(plain, WithMaxReadSize(4))
	require.ErrorIs(t, err, bintype.ErrSizeOverflow)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	blob := testutil.Scenario().Blob()
	failure := errors.New("read failed")
	tests := []struct {
		name     string
		chunks   [][]byte
		err      error
		want     digest.Digest
		wantSize int64
	}{
		{name: "whole blob", chunks: [][]byte{blob}, want: digest.FromBytes(blob), wantSize: int64(len(blob))},
		{name: "split", chunks: [][]byte{blob[:10], nil, blob[10:]}, want: digest.FromBytes(blob), wantSize: int64(len(blob))},
		{name: "empty", want: digest.FromBytes(nil)},
		{name: "error", chunks: [][]byte{blob[:10]}, err: failure, wantSize: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seq := func(yield func([]byte, error) bool) {
				for _, c := range tt.chunks {
					if !yield(c, nil) {
						return
					}
				}
				if tt.err != nil {
					yield(nil, tt.err)
				}
			}
			d, n, err := Digest(seq)
			assert.Equal(t, tt.wantSize, n)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestHandle_ReleaseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	h := NewHandle(testutil.NewMockSource(nil), func() error {
		calls++
		return nil
	})
	for range 3 {
		require.True(t, h.Acquire())
	}
	for range 4 {
		require.NoError(t, h.Release())
	}
	assert.Equal(t, 1, calls)
	require.NoError(t, h.Release())
	assert.Equal(t, 1, calls)
}
