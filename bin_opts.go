package ifcb

import (
	"fmt"
	"log/slog"
	nethttp "net/http"
	"strings"

	"github.com/meigma/ifcb/cache"
	"github.com/meigma/ifcb/internal/pixels"
)

// Validation selects how a bin load treats cross-artifact disagreement.
type Validation uint8

const (
	// ValidationStrict fails the load on any inconsistency.
	ValidationStrict Validation = iota

	// ValidationLenient downgrades row-count and blob-size mismatches to
	// warnings and exposes the longest consistent prefix of targets.
	ValidationLenient
)

// String returns the name of the validation mode.
func (v Validation) String() string {
	switch v {
	case ValidationStrict:
		return "strict"
	case ValidationLenient:
		return "lenient"
	default:
		return "unknown"
	}
}

// ParseValidation parses "strict" or "lenient", ignoring case.
func ParseValidation(s string) (Validation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ValidationStrict, nil
	case "lenient":
		return ValidationLenient, nil
	default:
		return 0, fmt.Errorf("ifcb: unknown validation mode %q", s)
	}
}

type config struct {
	schemaVersion    int
	schemaFromLID    bool
	validation       Validation
	lid              string
	serialized       bool
	maxArtifactSize  int64
	maxImageSize     int64
	maxDecoderMemory int64
	tempDir          string
	logger           *slog.Logger

	// OpenURL only.
	httpClient *nethttp.Client
	blockCache cache.BlockCache
}

func newConfig(opts []Option) config {
	c := config{
		maxArtifactSize:  pixels.DefaultMaxReadSize,
		maxImageSize:     pixels.DefaultMaxReadSize,
		maxDecoderMemory: pixels.DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures how a Bin is loaded.
type Option func(*config)

// WithSchemaVersion overrides the schema version declared in the header.
// Zero keeps the declared version.
func WithSchemaVersion(v int) Option {
	return func(c *config) {
		c.schemaVersion = v
	}
}

// WithSchemaFromLID selects the schema from the revision the run identifier
// implies instead of the version the header declares. It has no effect when
// the identifier does not parse or WithSchemaVersion is set.
func WithSchemaFromLID(enabled bool) Option {
	return func(c *config) {
		c.schemaFromLID = enabled
	}
}

// WithValidation sets the validation mode (default ValidationStrict).
func WithValidation(v Validation) Option {
	return func(c *config) {
		c.validation = v
	}
}

// WithLID sets the run identifier of a bin. Open and OpenFileset derive it
// from the artifact file names when unset.
func WithLID(lid string) Option {
	return func(c *config) {
		c.lid = lid
	}
}

// WithSerializedReads serializes pixel reads for sources whose ReadAt is
// not safe for concurrent use.
func WithSerializedReads(enabled bool) Option {
	return func(c *config) {
		c.serialized = enabled
	}
}

// WithMaxArtifactSize limits the size of the header and feature table.
// Set limit to 0 to disable the limit.
func WithMaxArtifactSize(limit int64) Option {
	return func(c *config) {
		c.maxArtifactSize = limit
	}
}

// WithMaxImageSize limits the size of a single target image read.
// Set limit to 0 to disable the limit.
func WithMaxImageSize(limit int64) Option {
	return func(c *config) {
		c.maxImageSize = limit
	}
}

// WithMaxDecoderMemory limits the memory used to decode zstd-compressed
// artifacts. Set limit to 0 to use the decoder default.
func WithMaxDecoderMemory(limit int64) Option {
	return func(c *config) {
		c.maxDecoderMemory = limit
	}
}

// WithTempDir sets the directory a zstd-compressed pixel blob is decoded
// into. Empty uses os.TempDir.
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

// WithLogger sets the logger for bin operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHTTPClient sets the client OpenURL uses for range requests.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithBlockCache caches the pixel blob of a bin opened by OpenURL in
// fixed-size blocks.
func WithBlockCache(bc cache.BlockCache) Option {
	return func(c *config) {
		c.blockCache = bc
	}
}
