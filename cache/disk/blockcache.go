// Package disk provides a disk-backed block cache for remote pixel blobs.
package disk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/ifcb/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	blockExt              = ".blk"
)

// BlockCache stores fixed-size blocks of pixel blobs as files under a
// directory, sharded by key prefix. Blocks are keyed by source ID, block size
// and block index, so a blob whose content changes gets a new ID and never
// sees stale blocks. The cache is safe for concurrent use.
type BlockCache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	logger         *slog.Logger

	bytes      atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
	fetchGroup singleflight.Group // one fetch per block at a time
	pruneMu    sync.Mutex
}

var _ cache.BlockCache = (*BlockCache)(nil)

// Option configures a BlockCache.
type Option func(*BlockCache)

// WithMaxBytes sets the maximum size in bytes of cached blocks.
// Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *BlockCache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *BlockCache) {
		c.dirPerm = mode
	}
}

// WithLogger sets the logger for cache hits and misses.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *BlockCache) {
		c.logger = logger
	}
}

// New creates a block cache rooted at dir. Blocks left by an earlier process
// count toward the size limit.
func New(dir string, opts ...Option) (*BlockCache, error) {
	if dir == "" {
		return nil, errors.New("block cache dir is empty")
	}
	c := &BlockCache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("block cache shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		c.maxBytes = 0
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

func (c *BlockCache) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Wrap returns a Source that serves reads through the cache.
func (c *BlockCache) Wrap(src cache.Source, opts ...cache.WrapOption) (cache.Source, error) {
	if src == nil {
		return nil, errors.New("block cache: source is nil")
	}
	cfg := cache.DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 || cfg.BlockSize > math.MaxInt32 {
		return nil, fmt.Errorf("block cache: invalid block size %d", cfg.BlockSize)
	}
	id := src.SourceID()
	if id == "" {
		return nil, errors.New("block cache: source id is empty")
	}
	return &cachedSource{
		src:              src,
		cache:            c,
		sourceID:         id,
		blockSize:        cfg.BlockSize,
		maxBlocksPerRead: cfg.MaxBlocksPerRead,
	}, nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *BlockCache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current size of cached blocks in bytes.
func (c *BlockCache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Stats returns the number of block hits and misses since New.
func (c *BlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Prune removes the least recently used blocks until the cache is at or
// below targetBytes.
func (c *BlockCache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	if freed > 0 {
		c.log().Debug("block cache pruned", "freed", freed, "remaining", remaining)
	}
	return freed, nil
}

// block returns one block of a source, from disk when cached.
func (c *BlockCache) block(sourceID string, blockSize, index, length int64, fetch func() ([]byte, error)) ([]byte, error) {
	key := blockKey(sourceID, blockSize, index)
	v, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		path := c.pathForKey(key)
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash
		switch {
		case err == nil && int64(len(data)) == length:
			c.hits.Add(1)
			now := time.Now()
			_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is advisory
			return data, nil
		case err == nil:
			// Truncated by a crash or an external writer.
			if os.Remove(path) == nil {
				c.bytes.Add(-int64(len(data)))
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		c.misses.Add(1)
		c.log().Debug("block cache miss", "source", sourceID, "block", index, "length", length)
		data, err = fetch()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != length {
			return nil, io.ErrUnexpectedEOF
		}
		if err := c.writeBlock(path, data); err != nil {
			c.log().Debug("block cache write failed", "path", path, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:errcheck // always []byte when err is nil
}

func (c *BlockCache) writeBlock(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ok, err := c.reserve(int64(len(data)))
	if err != nil || !ok {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".block-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	c.bytes.Add(int64(len(data)))
	return nil
}

// reserve makes room for need bytes, pruning if the limit would be exceeded.
// It reports false when the block can never fit.
func (c *BlockCache) reserve(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

func blockKey(sourceID string, blockSize, index int64) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(blockSize)) //nolint:gosec // validated > 0
	binary.BigEndian.PutUint64(buf[8:], uint64(index))     //nolint:gosec // never negative
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

func (c *BlockCache) pathForKey(key string) string {
	if c.shardPrefixLen == 0 {
		return filepath.Join(c.dir, key+blockExt)
	}
	n := min(c.shardPrefixLen, len(key))
	return filepath.Join(c.dir, key[:n], key+blockExt)
}
