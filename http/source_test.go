package http_test

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ifcbhttp "github.com/meigma/ifcb/http"
	"github.com/meigma/ifcb/internal/pixels"
)

func serve(t *testing.T, data []byte, etag string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		requests.Add(1)
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		nethttp.ServeContent(w, r, "bin.roi", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server, _ := serve(t, data, "")
	src, err := ifcbhttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(edge[:n]))

	_, err = src.ReadAt(buf, int64(len(data)))
	require.ErrorIs(t, err, io.EOF)
}

func TestSource_ReadRange(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789"), 50)
	server, requests := serve(t, data, `"v1"`)
	src, err := ifcbhttp.NewSource(context.Background(), server.URL, ifcbhttp.WithHeader("Authorization", "Bearer x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(src.SourceID(), `:"v1":500`), src.SourceID())

	r := pixels.NewReader(src)
	before := requests.Load()
	got, err := r.Read(95, 20)
	require.NoError(t, err)
	assert.Equal(t, data[95:115], got)
	assert.Equal(t, before+1, requests.Load())

	all, err := src.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, data, all)
	_, err = src.ReadAll(10)
	require.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestSource_Changed(t *testing.T) {
	t.Parallel()

	var etag atomic.Value
	etag.Store(`"a"`)
	data := []byte("pixels")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", etag.Load().(string))
		nethttp.ServeContent(w, r, "bin.roi", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := ifcbhttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	etag.Store(`"b"`)
	_, err = src.ReadAt(make([]byte, 2), 0)
	require.ErrorIs(t, err, ifcbhttp.ErrChanged)
}

func TestNewSource_Stat(t *testing.T) {
	t.Parallel()

	t.Run("range unsupported", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			_, _ = w.Write([]byte("no ranges here"))
		}))
		t.Cleanup(server.Close)
		_, err := ifcbhttp.NewSource(context.Background(), server.URL)
		require.ErrorIs(t, err, ifcbhttp.ErrRangeNotSupported)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(nethttp.NotFoundHandler())
		t.Cleanup(server.Close)
		_, err := ifcbhttp.NewSource(context.Background(), server.URL)
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		server, _ := serve(t, nil, "")
		src, err := ifcbhttp.NewSource(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Zero(t, src.Size())
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		server, _ := serve(t, []byte("x"), "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ifcbhttp.NewSource(ctx, server.URL)
		require.ErrorIs(t, err, context.Canceled)
	})
}
