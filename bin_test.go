package ifcb

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ifcb/testutil"
)

const testLID = "D20160714T023910_IFCB101"

func writeFixture(t *testing.T, f *testutil.Fixture) testutil.Paths {
	t.Helper()
	paths, err := f.WriteFiles(t.TempDir(), testLID)
	require.NoError(t, err)
	return paths
}

func openFixture(t *testing.T, f *testutil.Fixture, opts ...Option) *Bin {
	t.Helper()
	p := writeFixture(t, f)
	b, err := Open(p.Header, p.Table, p.Blob, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func targetOffsets(b *Bin) []int64 {
	var offs []int64
	for t := range b.Targets() {
		offs = append(offs, t.Offset)
	}
	return offs
}

func TestOpen_Scenario(t *testing.T) {
	t.Parallel()

	b := openFixture(t, testutil.Scenario())

	assert.Equal(t, testLID, b.LID())
	assert.Equal(t, 101, b.ID().Instrument)
	assert.Equal(t, 2, b.SchemaVersion())
	assert.Equal(t, 3, b.TargetCount())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, int64(184), b.BlobSize())
	assert.Equal(t, []int64{0, 100, 120}, targetOffsets(b))
	assert.Empty(t, b.Warnings())

	tgt, err := b.Target(1)
	require.NoError(t, err)
	assert.Equal(t, 2, tgt.Number)
	assert.Equal(t, int64(5), tgt.Width)
	assert.Equal(t, int64(4), tgt.Height)
	assert.Equal(t, int64(20), tgt.Length)
	trig, ok := tgt.Row.Get("trigger")
	require.True(t, ok)
	assert.Equal(t, int64(2), trig.Int())

	px, err := b.ImageBytes(1)
	require.NoError(t, err)
	assert.Equal(t, testutil.Pixels(1, 20), px)

	_, err = b.Target(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = b.ImageBytes(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestOpen_BlobSizeMismatch(t *testing.T) {
	t.Parallel()

	for _, size := range []int{183, 185} {
		p := writeFixture(t, testutil.Scenario())
		blob := testutil.Scenario().Blob()
		if size > len(blob) {
			blob = append(blob, 0)
		} else {
			blob = blob[:size]
		}
		require.NoError(t, os.WriteFile(p.Blob, blob, 0o600))

		_, err := Open(p.Header, p.Table, p.Blob)
		require.ErrorIs(t, err, ErrBlobSizeMismatch, "size %d", size)

		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, ArtifactBlob, fe.Artifact)
		assert.Equal(t, p.Blob, fe.Path)
		assert.Equal(t, "184 bytes", fe.Expected)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	count := 4
	tests := []struct {
		name    string
		fixture *testutil.Fixture
		opts    []Option
		wantErr error
		art     Artifact
	}{
		{
			name:    "row count",
			fixture: &testutil.Fixture{SchemaVersion: 2, Targets: testutil.Scenario().Targets, CountOverride: &count},
			wantErr: ErrRowCountMismatch,
			art:     ArtifactTable,
		},
		{
			name:    "unsupported version",
			fixture: &testutil.Fixture{SchemaVersion: 7, Targets: testutil.Scenario().Targets},
			wantErr: ErrUnsupportedVersion,
			art:     ArtifactHeader,
		},
		{
			name:    "schema override mismatch",
			fixture: testutil.Scenario(),
			opts:    []Option{WithSchemaVersion(1)},
			wantErr: ErrSchemaMismatch,
			art:     ArtifactTable,
		},
		{
			name:    "malformed header",
			fixture: &testutil.Fixture{SchemaVersion: 2, ExtraHeader: []string{"no delimiter here"}},
			wantErr: ErrMalformedLine,
			art:     ArtifactHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFixture(t, tt.fixture)
			b, err := Open(p.Header, p.Table, p.Blob, tt.opts...)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, b)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.art, fe.Artifact)
			assert.NotEmpty(t, fe.Path)
		})
	}
}

func TestOpen_MissingFiles(t *testing.T) {
	t.Parallel()

	p := writeFixture(t, testutil.Scenario())
	require.NoError(t, os.Remove(p.Blob))
	_, err := Open(p.Header, p.Table, p.Blob)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = OpenFileset(t.TempDir(), testLID)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_Lenient(t *testing.T) {
	t.Parallel()

	t.Run("truncated blob", func(t *testing.T) {
		t.Parallel()
		p := writeFixture(t, testutil.Scenario())
		require.NoError(t, os.WriteFile(p.Blob, testutil.Scenario().Blob()[:183], 0o600))

		_, err := Open(p.Header, p.Table, p.Blob)
		require.ErrorIs(t, err, ErrBlobSizeMismatch)

		b, err := Open(p.Header, p.Table, p.Blob, WithValidation(ValidationLenient))
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, 3, b.TargetCount())
		assert.Equal(t, 2, b.Len())
		assert.Equal(t, int64(120), b.BlobSize())
		require.Len(t, b.Warnings(), 1)
		assert.ErrorIs(t, b.Warnings()[0], ErrBlobSizeMismatch)
	})

	t.Run("missing rows", func(t *testing.T) {
		t.Parallel()
		count := 5
		f := testutil.Scenario()
		f.CountOverride = &count
		b := openFixture(t, f, WithValidation(ValidationLenient))
		assert.Equal(t, 5, b.TargetCount())
		assert.Equal(t, 3, b.Len())
		require.Len(t, b.Warnings(), 1)
		assert.ErrorIs(t, b.Warnings()[0], ErrRowCountMismatch)
	})

	t.Run("other errors stay fatal", func(t *testing.T) {
		t.Parallel()
		p := writeFixture(t, &testutil.Fixture{SchemaVersion: 9})
		_, err := Open(p.Header, p.Table, p.Blob, WithValidation(ValidationLenient))
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestNew_InMemory(t *testing.T) {
	t.Parallel()

	f := testutil.Scenario()
	src := testutil.NewMockSource(f.Blob())
	b, err := New(f.Header(), f.Table(), src, WithLID(testLID), WithSerializedReads(true))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Go(func() {
			px, err := b.ImageBytes(i % 3)
			assert.NoError(t, err)
			assert.NotEmpty(t, px)
		})
	}
	wg.Wait()
	assert.Positive(t, src.Reads())
	require.NoError(t, b.Close())
}

func TestBin_Image(t *testing.T) {
	t.Parallel()

	b := openFixture(t, testutil.Scenario())
	img, err := b.Image(2)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 8, 8), gray.Bounds())
	assert.Equal(t, testutil.Pixels(2, 64), gray.Pix)
}

func TestBin_TargetsRestartable(t *testing.T) {
	t.Parallel()

	f := testutil.NewFixture(testutil.Dims{3, 3}, testutil.Dims{0, 0}, testutil.Dims{4, 0}, testutil.Dims{2, 5})
	b := openFixture(t, f)

	first := targetOffsets(b)
	second := targetOffsets(b)
	assert.Equal(t, []int64{0, 9, 9, 9}, first)
	assert.Equal(t, first, second)

	var images []int
	for tgt := range b.ImageTargets() {
		images = append(images, tgt.Index)
	}
	assert.Equal(t, []int{0, 3}, images)

	var n int
	for range b.Targets() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestBin_Close(t *testing.T) {
	t.Parallel()

	b := openFixture(t, testutil.Scenario())
	require.NoError(t, b.Close())

	_, err := b.Target(0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = b.ImageBytes(0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = b.Image(0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = b.Select(func(Target) bool { return true })
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.Close(), ErrClosed)

	var n int
	for range b.Targets() {
		n++
	}
	assert.Zero(t, n)
}

func TestOpen_SchemaFromLID(t *testing.T) {
	t.Parallel()

	const v1LID = "IFCB5_2010_263_201336"
	v1 := &testutil.Fixture{
		SchemaVersion: 1,
		Targets:       []testutil.Dims{{Width: 4, Height: 2}, {Width: 3, Height: 3}},
	}
	tests := []struct {
		name       string
		fixture    *testutil.Fixture
		lid        string
		opts       []Option
		wantSchema int
		wantErr    error
		wantLog    string
	}{
		{name: "header wins", fixture: v1, lid: testLID, wantSchema: 1, wantLog: "schema version disagrees with lid"},
		{name: "agreeing lid", fixture: v1, lid: v1LID, opts: []Option{WithSchemaFromLID(true)}, wantSchema: 1},
		{name: "lid wins", fixture: v1, lid: testLID, opts: []Option{WithSchemaFromLID(true)}, wantErr: ErrSchemaMismatch},
		{name: "lid wins v2 header", fixture: testutil.Scenario(), lid: v1LID, opts: []Option{WithSchemaFromLID(true)}, wantErr: ErrSchemaMismatch},
		{name: "override wins", fixture: v1, lid: testLID, opts: []Option{WithSchemaFromLID(true), WithSchemaVersion(1)}, wantSchema: 1},
		{name: "unparsable lid", fixture: v1, lid: "bin", opts: []Option{WithSchemaFromLID(true)}, wantSchema: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
			p, err := tt.fixture.WriteFiles(t.TempDir(), tt.lid)
			require.NoError(t, err)

			b, err := Open(p.Header, p.Table, p.Blob, append(tt.opts, WithLogger(logger))...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, tt.wantSchema, b.SchemaVersion())
			assert.Equal(t, tt.fixture.Header(), b.Header().Bytes())
			if tt.wantLog != "" {
				assert.Contains(t, logs.String(), tt.wantLog)
			} else {
				assert.NotContains(t, logs.String(), "level=WARN")
			}
		})
	}
}

func TestOpenFileset_Compressed(t *testing.T) {
	t.Parallel()

	f := testutil.Scenario()
	p := writeFixture(t, f)
	for _, path := range []string{p.Table, p.Blob} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		packed, err := testutil.Compress(data)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path+".zst", packed, 0o600))
		require.NoError(t, os.Remove(path))
	}

	spoolDir := t.TempDir()
	b, err := OpenFileset(filepath.Dir(p.Header), testLID, WithTempDir(spoolDir))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	px, err := b.ImageBytes(2)
	require.NoError(t, err)
	assert.Equal(t, testutil.Pixels(2, 64), px)

	require.NoError(t, b.Close())
	entries, err := os.ReadDir(spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidation_Parse(t *testing.T) {
	t.Parallel()

	v, err := ParseValidation("Lenient")
	require.NoError(t, err)
	assert.Equal(t, ValidationLenient, v)
	v, err = ParseValidation("")
	require.NoError(t, err)
	assert.Equal(t, ValidationStrict, v)
	assert.Equal(t, "strict", v.String())
	_, err = ParseValidation("loose")
	require.Error(t, err)
}
