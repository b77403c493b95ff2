// Package batch exports many target images from a pixel blob efficiently.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/pixels"
)

const (
	// parallelMinAvgBytes is the minimum average item size to use parallel processing.
	parallelMinAvgBytes = 16 << 10

	// DefaultMaxGroupBytes caps the size of one grouped read (4MB).
	DefaultMaxGroupBytes = 4 << 20
)

// Processor handles batch reading and processing of target images.
//
// It groups items that are adjacent in the pixel blob and reads each group
// with a single positioned read, minimizing operations on the source.
type Processor struct {
	reader           *pixels.Reader
	workers          int // 0 = auto, <0 = serial, >0 = fixed count
	readConcurrency  int
	readAheadBytes   int64
	readAheadEnabled bool
	maxGroupBytes    int64
	progress         bintype.ProgressFunc
	logger           *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses automatic heuristics.
// Values > 0 force a specific worker count.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithReadConcurrency sets the number of concurrent range reads.
// Values < 1 force serial reads.
func WithReadConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		p.readConcurrency = max(n, 1)
	}
}

// WithReadAheadBytes caps the total size of buffered group data.
// A value of 0 disables the byte budget.
func WithReadAheadBytes(limit int64) ProcessorOption {
	return func(p *Processor) {
		p.readAheadBytes = max(limit, 0)
		p.readAheadEnabled = limit > 0
	}
}

// WithMaxGroupBytes caps the size of a single grouped read.
// A value of 0 disables the cap.
func WithMaxGroupBytes(limit int64) ProcessorOption {
	return func(p *Processor) {
		p.maxGroupBytes = max(limit, 0)
	}
}

// WithProgress sets a callback invoked after every processed item.
func WithProgress(fn bintype.ProgressFunc) ProcessorOption {
	return func(p *Processor) {
		p.progress = fn
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new batch processor reading from source.
func NewProcessor(source pixels.Source, opts ...ProcessorOption) *Processor {
	p := &Processor{
		reader:          pixels.NewReader(source, pixels.WithMaxReadSize(0)),
		readConcurrency: 1,
		maxGroupBytes:   DefaultMaxGroupBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run tracks the progress of one Process call.
type run struct {
	total      int
	bytesTotal uint64
	done       atomic.Int64
	bytesDone  atomic.Int64
	processed  atomic.Int64
}

// Process reads items and writes them to the sink.
//
// Items are filtered through sink.ShouldProcess, sorted by offset, grouped
// into contiguous ranges and processed. ctx is checked between items, never
// in the middle of one. Processing stops on the first error encountered.
func (p *Processor) Process(ctx context.Context, items []*Item, sink Sink) (ProcessStats, error) {
	var stats ProcessStats
	toProcess := make([]*Item, 0, len(items))
	for _, item := range items {
		if sink.ShouldProcess(item) {
			toProcess = append(toProcess, item)
		} else {
			stats.Skipped++
		}
	}
	if len(toProcess) == 0 {
		return stats, nil
	}

	r := &run{total: len(toProcess)}
	for _, item := range toProcess {
		if item.Offset < 0 || item.Length < 0 || item.end() > p.reader.Size() {
			fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrIndexOutOfRange)
			fe.Row = item.Index
			fe.Offset = item.Offset
			fe.Expected = fmt.Sprintf("range within %d bytes", p.reader.Size())
			fe.Actual = fmt.Sprintf("range ending at %d", item.end())
			return stats, fmt.Errorf("batch: %s: %w", item.Name, fe)
		}
		r.bytesTotal += uint64(item.Length) //nolint:gosec // validated non-negative
	}

	slices.SortStableFunc(toProcess, func(a, b *Item) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})

	groups := groupAdjacentItems(toProcess, p.maxGroupBytes)
	p.log().Debug("batch processing", "items", len(toProcess), "groups", len(groups))

	var err error
	if len(groups) > 1 && (p.readConcurrency > 1 || p.readAheadEnabled) {
		err = p.processGroupsPipelined(ctx, groups, sink, r)
	} else {
		err = p.processGroupsSequential(ctx, groups, sink, r)
	}
	stats.Processed = int(r.processed.Load())
	stats.TotalBytes = r.bytesDone.Load()
	return stats, err
}

// groupTask represents a pending group read operation for the pipeline.
type groupTask struct {
	index int
	group rangeGroup
	size  int64
}

// groupResult holds the completed read data for a group.
type groupResult struct {
	index int
	group rangeGroup
	data  []byte
	size  int64
}

// processGroupsSequential processes groups one at a time without pipelining.
func (p *Processor) processGroupsSequential(ctx context.Context, groups []rangeGroup, sink Sink, r *run) error {
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := p.readGroupData(group)
		if err != nil {
			return err
		}
		if err := p.processGroupWithData(ctx, group, data, sink, r); err != nil {
			return err
		}
	}
	return nil
}

//nolint:gocognit,gocyclo // pipeline coordinates readers and an ordered consumer
func (p *Processor) processGroupsPipelined(parent context.Context, groups []rangeGroup, sink Sink, r *run) error {
	readWorkers := max(p.readConcurrency, 1)

	var budget *semaphore.Weighted
	if p.readAheadEnabled {
		budget = semaphore.NewWeighted(p.readAheadBytes)
	}
	// A group larger than the whole budget takes all of it.
	weight := func(size int64) int64 {
		return min(size, p.readAheadBytes)
	}

	readCh := make(chan groupTask)
	readyCh := make(chan groupResult, readWorkers)
	eg, ctx := errgroup.WithContext(parent)

	var readWg sync.WaitGroup
	readWg.Add(readWorkers)

	for range readWorkers {
		eg.Go(func() error {
			defer readWg.Done()
			for task := range readCh {
				if err := ctx.Err(); err != nil {
					return err
				}
				if budget != nil {
					if err := budget.Acquire(ctx, weight(task.size)); err != nil {
						return err
					}
				}
				data, err := p.readGroupData(task.group)
				if err != nil {
					if budget != nil {
						budget.Release(weight(task.size))
					}
					return err
				}
				result := groupResult{index: task.index, group: task.group, data: data, size: task.size}
				select {
				case readyCh <- result:
				case <-ctx.Done():
					if budget != nil {
						budget.Release(weight(task.size))
					}
					return ctx.Err()
				}
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(readCh)
		for i, group := range groups {
			task := groupTask{index: i, group: group, size: group.size()}
			select {
			case readCh <- task:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	go func() {
		readWg.Wait()
		close(readyCh)
	}()

	eg.Go(func() error {
		next := 0
		pending := make(map[int]groupResult, readWorkers)
		for next < len(groups) {
			select {
			case res, ok := <-readyCh:
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					return errors.New("batch: read pipeline ended unexpectedly")
				}
				pending[res.index] = res
				for {
					res, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					err := p.processGroupWithData(ctx, res.group, res.data, sink, r)
					if budget != nil {
						budget.Release(weight(res.size))
					}
					if err != nil {
						return err
					}
					next++
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return eg.Wait()
}

// readGroupData reads the contiguous byte range for a group.
func (p *Processor) readGroupData(group rangeGroup) ([]byte, error) {
	data, err := p.reader.Read(group.start, group.size())
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return data, nil
}

// processGroupWithData processes all items in a group using pre-fetched data.
func (p *Processor) processGroupWithData(ctx context.Context, group rangeGroup, data []byte, sink Sink, r *run) error {
	workers := p.workerCount(group.items)
	if workers < 2 {
		for _, item := range group.items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.processItem(item, data, group.start, sink, r); err != nil {
				return err
			}
		}
		return nil
	}
	return p.processItemsParallel(ctx, group.items, data, group.start, sink, r, workers)
}

// processItemsParallel processes items concurrently.
func (p *Processor) processItemsParallel(ctx context.Context, items []*Item, data []byte, groupStart int64, sink Sink, r *run, workers int) error {
	var stop atomic.Bool
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	for w := range workers {
		wg.Go(func() {
			for i := w; i < len(items); i += workers {
				if stop.Load() {
					return
				}
				err := ctx.Err()
				if err == nil {
					err = p.processItem(items[i], data, groupStart, sink, r)
				}
				if err != nil {
					if stop.CompareAndSwap(false, true) {
						errCh <- err
					}
					return
				}
			}
		})
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// processItem writes a single item to the sink.
func (p *Processor) processItem(item *Item, groupData []byte, groupStart int64, sink Sink, r *run) error {
	start := item.Offset - groupStart
	end := start + item.Length
	if start < 0 || end > int64(len(groupData)) {
		return fmt.Errorf("batch: %s: %w", item.Name, bintype.ErrSizeOverflow)
	}
	content := groupData[start:end]

	if buffered, ok := sink.(BufferedSink); ok {
		if err := buffered.PutBuffered(item, content); err != nil {
			return fmt.Errorf("batch: %s: %w", item.Name, err)
		}
	} else {
		w, err := sink.Writer(item)
		if err != nil {
			return fmt.Errorf("batch: %s: %w", item.Name, err)
		}
		if err := writeAll(w, content); err != nil {
			_ = w.Discard() //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("batch: %s: %w", item.Name, err)
		}
		if err := w.Commit(); err != nil {
			return fmt.Errorf("batch: %s: commit: %w", item.Name, err)
		}
	}

	p.report(item, r)
	return nil
}

func (p *Processor) report(item *Item, r *run) {
	r.processed.Add(1)
	bytesDone := r.bytesDone.Add(item.Length)
	done := r.done.Add(1)
	if p.progress == nil {
		return
	}
	p.progress(bintype.ProgressEvent{
		Stage:        bintype.StageExporting,
		Target:       item.Index,
		BytesDone:    uint64(bytesDone), //nolint:gosec // non-negative sum
		BytesTotal:   r.bytesTotal,
		TargetsDone:  int(done),
		TargetsTotal: r.total,
	})
}

// workerCount determines the number of workers to use for processing.
func (p *Processor) workerCount(items []*Item) int {
	if len(items) < 2 || p.workers < 0 {
		return 1
	}

	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 2 {
			return 1
		}
		// Only parallelize for larger images.
		var total int64
		for _, item := range items {
			total += item.Length
		}
		if total/int64(len(items)) < parallelMinAvgBytes {
			return 1
		}
	}
	return max(min(workers, len(items)), 1)
}

// writeAll writes all data to w, handling partial writes.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
