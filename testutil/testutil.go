// Package testutil provides in-memory pixel sources and bin fixtures for tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync/atomic"
)

// MockSource implements a simple in-memory pixel source for tests.
type MockSource struct {
	data     []byte
	sourceID string
	reads    atomic.Int64
}

// NewMockSource returns a source backed by the provided data.
func NewMockSource(data []byte) *MockSource {
	sum := sha256.Sum256(data)
	return &MockSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls served.
func (m *MockSource) Reads() int64 {
	return m.reads.Load()
}
