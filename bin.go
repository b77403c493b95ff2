package ifcb

import (
	"fmt"
	"image"
	"iter"
	"log/slog"
	"strconv"
	"sync"

	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/header"
	"github.com/meigma/ifcb/internal/offsets"
	"github.com/meigma/ifcb/internal/pixels"
	"github.com/meigma/ifcb/internal/schema"
	"github.com/meigma/ifcb/internal/table"
	"github.com/meigma/ifcb/pid"
)

// state is the lifecycle state of a Bin.
type state uint8

const (
	stateUnopened state = iota
	stateLoading
	stateReady
	stateFailed
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateLoading:
		return "loading"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Bin is one acquisition run: a header, a feature table and a pixel blob
// that agree with each other.
//
// A Bin is only ever returned in the ready state. Its accessors are safe for
// concurrent use. Close releases the pixel blob; afterwards every method
// that touches it returns ErrClosed.
type Bin struct {
	mu    sync.RWMutex
	state state

	id   pid.Pid
	lid  string
	hdr  *header.Header
	desc *schema.Descriptor
	tbl  *table.Table
	idx  *offsets.Index

	// srcOffsets[i] is the offset of target i in the source blob, and
	// numbers[i] its 1-based number in the bin it was first loaded from.
	srcOffsets []int64
	numbers    []int

	handle   *pixels.Handle
	reader   *pixels.Reader
	warnings []error
	cfg      config
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Bin) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// New creates a Bin from in-memory header and feature table text and a
// pixel source. The caller keeps ownership of src; Close does not close it.
func New(headerData, tableData []byte, src Source, opts ...Option) (*Bin, error) {
	cfg := newConfig(opts)
	if cfg.serialized {
		src = pixels.Serialized(src)
	}
	return load(headerData, tableData, pixels.NewHandle(src, nil), cfg)
}

// load builds a Bin in one step: header, schema, table, row count, offsets
// and blob size. The handle is released on every failure path.
func load(headerData, tableData []byte, h *pixels.Handle, cfg config) (*Bin, error) {
	b := &Bin{state: stateUnopened, handle: h, cfg: cfg, lid: cfg.lid}
	b.state = stateLoading
	if err := b.build(headerData, tableData); err != nil {
		b.state = stateFailed
		_ = h.Release() //nolint:errcheck // the load error takes precedence
		return nil, err
	}
	b.state = stateReady
	b.log().Info("bin opened",
		"lid", b.lid,
		"schema", b.desc.Version,
		"targets", b.Len(),
		"blobBytes", b.reader.Size(),
		"validation", cfg.validation.String())
	return b, nil
}

func (b *Bin) build(headerData, tableData []byte) error {
	if p, err := pid.Parse(b.lid); err == nil {
		b.id = p
	}

	hdr, err := header.Parse(headerData)
	if err != nil {
		return err
	}
	b.hdr = hdr

	version := hdr.SchemaVersion()
	switch {
	case b.cfg.schemaVersion != 0:
		version = b.cfg.schemaVersion
	case b.id.SchemaVersion == 0 || b.id.SchemaVersion == version:
	case b.cfg.schemaFromLID:
		b.log().Debug("schema taken from lid", "lid", b.lid, "declared", version, "schema", b.id.SchemaVersion)
		version = b.id.SchemaVersion
	default:
		b.log().Warn("schema version disagrees with lid",
			"lid", b.lid, "declared", version, "implied", b.id.SchemaVersion)
	}
	desc, err := schema.Resolve(version)
	if err != nil {
		return err
	}
	b.desc = desc

	tbl, err := table.Parse(tableData, desc)
	if err != nil {
		return err
	}

	n := tbl.Len()
	if declared := hdr.TargetCount(); n != declared {
		fe := bintype.NewFormatError(bintype.ArtifactTable, bintype.ErrRowCountMismatch)
		fe.Expected = strconv.Itoa(declared) + " rows"
		fe.Actual = strconv.Itoa(n) + " rows"
		if err := b.downgrade(fe); err != nil {
			return err
		}
		n = min(n, declared)
	}

	dims := make([]offsets.Dims, n)
	for i := range n {
		row, _ := tbl.Row(i) //nolint:errcheck // i < tbl.Len()
		dims[i] = offsets.Dims{Width: row.Width(), Height: row.Height()}
	}
	idx, err := offsets.Build(dims, desc.BytesPerPixel)
	if err != nil {
		return err
	}

	src := b.handle.Source()
	if err := idx.Validate(src.Size()); err != nil {
		if err := b.downgrade(err); err != nil {
			return err
		}
		n = idx.ConsistentPrefix(src.Size())
		idx = idx.Truncate(n)
	}

	if n < tbl.Len() {
		if tbl, err = tbl.Subset(prefix(n)); err != nil {
			return err
		}
	}
	b.tbl = tbl
	b.idx = idx
	b.srcOffsets = make([]int64, n)
	b.numbers = make([]int, n)
	for i, r := range idx.Ranges() {
		b.srcOffsets[i] = r.Offset
		b.numbers[i] = i + 1
	}
	b.reader = pixels.NewReader(src, pixels.WithMaxReadSize(b.cfg.maxImageSize))
	return nil
}

// downgrade returns err in strict mode. In lenient mode it records err as a
// warning and returns nil.
func (b *Bin) downgrade(err error) error {
	if b.cfg.validation != ValidationLenient {
		return err
	}
	b.warnings = append(b.warnings, err)
	b.log().Warn("inconsistent bin", "lid", b.lid, "error", err)
	return nil
}

func prefix(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// ID returns the parsed run identifier. It is the zero Pid when the bin's
// LID is not a valid identifier.
func (b *Bin) ID() pid.Pid {
	return b.id
}

// LID returns the run identifier used to name the bin's artifacts.
func (b *Bin) LID() string {
	return b.lid
}

// SchemaVersion returns the schema version the feature table was parsed with.
func (b *Bin) SchemaVersion() int {
	return b.desc.Version
}

// Descriptor returns the feature-table layout of the bin.
func (b *Bin) Descriptor() *Descriptor {
	return b.desc
}

// TargetCount returns the target count declared by the header.
func (b *Bin) TargetCount() int {
	return b.hdr.TargetCount()
}

// Len returns the number of accessible targets. It equals TargetCount
// unless lenient validation trimmed an inconsistent bin.
func (b *Bin) Len() int {
	return b.idx.Len()
}

// Header returns the parsed header.
func (b *Bin) Header() *Header {
	return b.hdr
}

// BlobSize returns the number of pixel bytes the bin's targets occupy.
func (b *Bin) BlobSize() int64 {
	return b.idx.Total()
}

// Warnings returns the inconsistencies lenient validation tolerated.
func (b *Bin) Warnings() []error {
	return append([]error(nil), b.warnings...)
}

// Target returns target i.
func (b *Bin) Target(i int) (Target, error) {
	if err := b.checkOpen(); err != nil {
		return Target{}, err
	}
	return b.target(i)
}

func (b *Bin) target(i int) (Target, error) {
	r, err := b.idx.Range(i)
	if err != nil {
		return Target{}, err
	}
	row, err := b.tbl.Row(i)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Index:  i,
		Number: b.numbers[i],
		Row:    row,
		Width:  row.Width(),
		Height: row.Height(),
		Offset: r.Offset,
		Length: r.Length,
	}, nil
}

// Targets iterates over all targets in order. The sequence can be ranged
// over more than once; it is empty once the bin is closed.
func (b *Bin) Targets() iter.Seq[Target] {
	return func(yield func(Target) bool) {
		if b.checkOpen() != nil {
			return
		}
		for i := range b.idx.Len() {
			t, err := b.target(i)
			if err != nil || !yield(t) {
				return
			}
		}
	}
}

// ImageTargets iterates over the targets that have a non-empty image.
func (b *Bin) ImageTargets() iter.Seq[Target] {
	return func(yield func(Target) bool) {
		for t := range b.Targets() {
			if t.HasImage() && !yield(t) {
				return
			}
		}
	}
}

// ImageBytes returns the raw pixels of target i.
func (b *Bin) ImageBytes(i int) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != stateReady {
		return nil, ErrClosed
	}
	return b.imageBytes(i)
}

// imageBytes reads target i's pixels. The caller must hold b.mu.
func (b *Bin) imageBytes(i int) ([]byte, error) {
	r, err := b.idx.Range(i)
	if err != nil {
		return nil, err
	}
	p, err := b.reader.Read(b.srcOffsets[i], r.Length)
	if err != nil {
		return nil, fmt.Errorf("target %d: %w", i, err)
	}
	return p, nil
}

// Image returns target i as a grayscale image.
func (b *Bin) Image(i int) (image.Image, error) {
	p, err := b.ImageBytes(i)
	if err != nil {
		return nil, err
	}
	t, err := b.target(i)
	if err != nil {
		return nil, err
	}
	return pixels.Image(p, t.Width, t.Height, b.desc.BytesPerPixel)
}

func (b *Bin) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != stateReady {
		return ErrClosed
	}
	return nil
}

// Close releases the bin's reference to its pixel blob. The blob is closed
// once every bin sharing it has been closed. Closing a closed bin returns
// ErrClosed.
func (b *Bin) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateReady {
		return ErrClosed
	}
	b.state = stateClosed
	b.log().Debug("bin closed", "lid", b.lid)
	return b.handle.Release()
}
