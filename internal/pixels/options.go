package pixels

const (
	// DefaultMaxReadSize is the default limit on a single read (256MB).
	DefaultMaxReadSize = 256 << 20

	// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256MB).
	DefaultMaxDecoderMemory = 256 << 20
)

type config struct {
	maxReadSize      int64
	maxDecoderMemory int64
	tempDir          string
}

// Option configures a Reader or a decompressing open.
type Option func(*config)

// WithMaxReadSize limits the number of bytes a single read may return.
// Set to 0 to disable the limit.
func WithMaxReadSize(limit int64) Option {
	return func(c *config) {
		c.maxReadSize = max(limit, 0)
	}
}

// WithMaxDecoderMemory limits zstd decoder memory.
// Set to 0 to use the decoder default.
func WithMaxDecoderMemory(limit int64) Option {
	return func(c *config) {
		c.maxDecoderMemory = max(limit, 0)
	}
}

// WithTempDir sets the directory compressed pixel blobs are decoded into.
// Empty uses os.TempDir.
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

func newConfig(opts []Option) config {
	c := config{
		maxReadSize:      DefaultMaxReadSize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
