package pixels

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/sizing"
)

func newDecoder(r io.Reader, cfg config) (*zstd.Decoder, error) {
	if cfg.maxDecoderMemory == 0 {
		return zstd.NewReader(r)
	}
	return zstd.NewReader(r, zstd.WithDecoderMaxMemory(uint64(cfg.maxDecoderMemory))) //nolint:gosec // non-negative by construction
}

// ReadFile reads a whole text artifact, decompressing it when path ends in
// ZstdExt. The decoded size is limited by WithMaxReadSize.
func ReadFile(path string, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	f, err := os.Open(path) //nolint:gosec // caller-provided path is intentional
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ZstdExt) {
		dec, err := newDecoder(f, cfg)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	limit := cfg.maxReadSize
	if limit == 0 {
		limit = 1<<63 - 2
	}
	data, err := sizing.ReadAllWithLimit(r, limit, bintype.ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
