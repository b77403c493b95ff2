package testutil

import "github.com/klauspost/compress/zstd"

// Compress returns data zstd-compressed at the default level, the way
// compressed artifacts are stored next to a bin.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}
