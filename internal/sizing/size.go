// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import (
	"io"
	"math"
)

// ToInt converts an int64 to int, returning overflowErr if it doesn't fit.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || size > int64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// AddInt64 adds two non-negative int64 values, returning (result, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// MulInt64 multiplies two non-negative int64 values, returning (result, false)
// on overflow.
func MulInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize int64, overflowErr error) ([]byte, error) {
	if maxSize < 0 || maxSize > math.MaxInt64-1 {
		return nil, overflowErr
	}
	lr := &io.LimitedReader{R: r, N: maxSize + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, overflowErr
	}
	return data, nil
}
