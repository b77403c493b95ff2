// Package cache defines block caching for remote pixel blobs.
//
// A pixel blob fetched over the network is read one target at a time, and
// targets are small and scattered. A BlockCache keeps fixed-size blocks of
// such a blob so that repeated reads of the same bin do not hit the remote
// again.
package cache

import (
	"io"

	"github.com/meigma/ifcb/internal/pixels"
)

// Source provides random access to a pixel blob.
type Source = pixels.Source

// RangeReader provides range reads for block fetches.
type RangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// BlockCache wraps Sources with block-level caching.
//
// Block caching pays off for the scattered per-target reads of Bin.Image.
// Bulk export reads long runs of adjacent targets; DefaultMaxBlocksPerRead
// sends those past the cache.
type BlockCache interface {
	Wrap(src Source, opts ...WrapOption) (Source, error)

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached blocks until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// DefaultBlockSize is the default block size. Most targets are a few
// kilobytes, so one block usually holds several of them.
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocksPerRead caps cached blocks per ReadAt.
const DefaultMaxBlocksPerRead = 8

// WrapConfig controls how a Source is wrapped.
type WrapConfig struct {
	BlockSize        int64
	MaxBlocksPerRead int
}

// DefaultWrapConfig returns the default wrap configuration.
func DefaultWrapConfig() WrapConfig {
	return WrapConfig{
		BlockSize:        DefaultBlockSize,
		MaxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
}

// WrapOption configures Wrap.
type WrapOption func(*WrapConfig)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.BlockSize = n
	}
}

// WithMaxBlocksPerRead bypasses the cache when a ReadAt spans more than n
// blocks. Values <= 0 disable the limit.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.MaxBlocksPerRead = n
	}
}
