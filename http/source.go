// Package http provides a pixel Source backed by HTTP range requests, for
// bins served from a dashboard or object store.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
)

var (
	// ErrRangeNotSupported is returned when the server ignores Range headers.
	ErrRangeNotSupported = errors.New("http: range requests not supported")

	// ErrChanged is returned when the remote content no longer matches the
	// validators seen when the Source was created.
	ErrChanged = errors.New("http: remote content changed")

	errUnsatisfiable = errors.New("http: range not satisfiable")
)

// Source implements random access reads via HTTP range requests.
// It is safe for concurrent use.
type Source struct {
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	logger       *slog.Logger
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on each request, such as an authorization token.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithLogger sets the logger for range requests.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a Source for url. It sends a one-byte range request to
// learn the content size and validators; ctx bounds that first request only.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{url: url}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if err := s.stat(ctx); err != nil {
		return nil, fmt.Errorf("stat %s: %w", url, err)
	}
	return s, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies the remote content by URL, validator and size.
func (s *Source) SourceID() string {
	v := s.etag
	if v == "" {
		v = s.lastModified
	}
	return fmt.Sprintf("http:%s:%s:%d", s.url, v, s.size)
}

// ReadAll returns the whole remote content. It fails with
// io.ErrShortBuffer if the content is larger than limit.
func (s *Source) ReadAll(limit int64) ([]byte, error) {
	if limit > 0 && s.size > limit {
		return nil, fmt.Errorf("%s: %d bytes exceeds limit %d: %w", s.url, s.size, limit, io.ErrShortBuffer)
	}
	rc, err := s.ReadRange(0, s.size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, s.size)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadRange returns a reader for length bytes starting at off. Ranges past
// the end are clipped.
func (s *Source) ReadRange(off, length int64) (io.ReadCloser, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("read range %d+%d: negative offset or length", off, length)
	}
	if length == 0 || off >= s.size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	length = min(length, s.size-off)

	resp, err := s.get(context.Background(), off, off+length-1)
	if err != nil {
		return nil, err
	}
	return &rangeReadCloser{body: resp.Body, Reader: io.LimitReader(resp.Body, length)}, nil
}

// ReadAt reads len(p) bytes at off with one range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), s.size-off)

	resp, err := s.get(context.Background(), off, off+want-1)
	if err != nil {
		return 0, err
	}
	defer drain(resp.Body)

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// get issues a conditional range request for [first, last].
func (s *Source) get(ctx context.Context, first, last int64) (*nethttp.Response, error) {
	req, err := s.newRequest(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	} else if s.lastModified != "" {
		req.Header.Set("If-Unmodified-Since", s.lastModified)
	}

	s.logger.Debug("http range request", "url", s.url, "first", first, "last", last)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		return resp, nil
	case nethttp.StatusOK:
		drain(resp.Body)
		return nil, ErrRangeNotSupported
	case nethttp.StatusRequestedRangeNotSatisfiable:
		drain(resp.Body)
		return nil, errUnsatisfiable
	case nethttp.StatusPreconditionFailed:
		drain(resp.Body)
		return nil, ErrChanged
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("range request %d-%d: %s", first, last, resp.Status)
	}
}

func (s *Source) stat(ctx context.Context) error {
	resp, err := s.get(ctx, 0, 0)
	if errors.Is(err, errUnsatisfiable) {
		// Only empty content cannot serve byte 0.
		s.size = 0
		return nil
	}
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return nil
}

func (s *Source) newRequest(ctx context.Context) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

type rangeReadCloser struct {
	io.Reader
	body io.ReadCloser
}

func (r *rangeReadCloser) Close() error {
	_, _ = io.Copy(io.Discard, r.body)
	return r.body.Close()
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// parseContentRange returns the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
