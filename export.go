package ifcb

import (
	"context"
	"time"

	"github.com/meigma/ifcb/internal/batch"
	"github.com/meigma/ifcb/pid"
)

// defaultExportReadConcurrency is used when no ExportWithReadConcurrency option is set.
const defaultExportReadConcurrency = 4

// ExportOption configures Export.
type ExportOption func(*exportConfig)

type exportConfig struct {
	workers         int
	readConcurrency int
	readAheadBytes  int64
	maxGroupBytes   int64
	progress        ProgressFunc
}

// ExportWithWorkers sets the number of workers encoding images in parallel.
// Values < 0 force serial processing. Zero uses automatic heuristics.
func ExportWithWorkers(n int) ExportOption {
	return func(c *exportConfig) {
		c.workers = n
	}
}

// ExportWithReadConcurrency sets the number of concurrent range reads.
// Use 1 to force serial reads. Zero uses the default concurrency (4).
func ExportWithReadConcurrency(n int) ExportOption {
	return func(c *exportConfig) {
		if n <= 0 {
			n = defaultExportReadConcurrency
		}
		c.readConcurrency = n
	}
}

// ExportWithReadAheadBytes caps the total size of pixel data read ahead of
// the sink. A value of 0 disables the byte budget.
func ExportWithReadAheadBytes(limit int64) ExportOption {
	return func(c *exportConfig) {
		c.readAheadBytes = limit
	}
}

// ExportWithMaxGroupBytes caps the size of one grouped read of adjacent
// targets. A value of 0 disables the cap.
func ExportWithMaxGroupBytes(limit int64) ExportOption {
	return func(c *exportConfig) {
		c.maxGroupBytes = limit
	}
}

// ExportWithProgress sets a callback invoked after every exported image.
func ExportWithProgress(fn ProgressFunc) ExportOption {
	return func(c *exportConfig) {
		c.progress = fn
	}
}

// Export writes every target with a non-empty image to sink.
//
// Images are named <lid>_<number>, with the 1-based target number zero-padded
// to five digits; a DirSink adds the format's extension. Adjacent targets are
// fetched with one read. ctx is checked between targets, never in the middle
// of one.
func (b *Bin) Export(ctx context.Context, sink ExportSink, opts ...ExportOption) (ExportStats, error) {
	cfg := exportConfig{
		readConcurrency: defaultExportReadConcurrency,
		maxGroupBytes:   batch.DefaultMaxGroupBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != stateReady {
		return ExportStats{}, ErrClosed
	}

	var items []*ExportItem
	for i := range b.idx.Len() {
		t, err := b.target(i)
		if err != nil {
			return ExportStats{}, err
		}
		if !t.HasImage() {
			continue
		}
		items = append(items, &ExportItem{
			Index:         i,
			Name:          pid.ImageName(b.lid, t.Number, ""),
			Offset:        b.srcOffsets[i],
			Length:        t.Length,
			Width:         t.Width,
			Height:        t.Height,
			BytesPerPixel: b.desc.BytesPerPixel,
		})
	}

	p := batch.NewProcessor(b.reader.Source(),
		batch.WithWorkers(cfg.workers),
		batch.WithReadConcurrency(cfg.readConcurrency),
		batch.WithReadAheadBytes(cfg.readAheadBytes),
		batch.WithMaxGroupBytes(cfg.maxGroupBytes),
		batch.WithProgress(cfg.progress),
		batch.WithProcessorLogger(b.cfg.logger),
	)
	start := time.Now()
	stats, err := p.Process(ctx, items, sink)
	if err != nil {
		return stats, err
	}
	b.log().Info("bin exported",
		"lid", b.lid,
		"images", stats.Processed,
		"skipped", stats.Skipped,
		"bytes", stats.TotalBytes,
		"elapsed", time.Since(start))
	return stats, nil
}
