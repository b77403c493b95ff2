package ifcb

import (
	"github.com/meigma/ifcb/internal/offsets"
)

// Select returns a new Bin holding the targets for which keep returns true,
// in their original order.
//
// The source bin is not modified. The derived bin's header declares the new
// target count, its rows are the selected rows verbatim, and its offsets are
// derived afresh from the selected dimensions. Pixel reads are served from
// the source blob, which stays open until both bins are closed.
func (b *Bin) Select(keep func(Target) bool) (*Bin, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var picked []int
	for i := range b.idx.Len() {
		t, err := b.target(i)
		if err != nil {
			return nil, err
		}
		if keep(t) {
			picked = append(picked, i)
		}
	}

	tbl, err := b.tbl.Subset(picked)
	if err != nil {
		return nil, err
	}
	dims := make([]offsets.Dims, len(picked))
	srcOffsets := make([]int64, len(picked))
	numbers := make([]int, len(picked))
	for n, i := range picked {
		row, err := b.tbl.Row(i)
		if err != nil {
			return nil, err
		}
		dims[n] = offsets.Dims{Width: row.Width(), Height: row.Height()}
		srcOffsets[n] = b.srcOffsets[i]
		numbers[n] = b.numbers[i]
	}
	idx, err := offsets.Build(dims, b.desc.BytesPerPixel)
	if err != nil {
		return nil, err
	}

	if !b.handle.Acquire() {
		return nil, ErrClosed
	}
	if err := b.checkOpen(); err != nil {
		_ = b.handle.Release() //nolint:errcheck // other bins still hold the blob
		return nil, err
	}
	derived := &Bin{
		state:      stateReady,
		id:         b.id,
		lid:        b.lid,
		hdr:        b.hdr.WithTargetCount(len(picked)),
		desc:       b.desc,
		tbl:        tbl,
		idx:        idx,
		srcOffsets: srcOffsets,
		numbers:    numbers,
		handle:     b.handle,
		reader:     b.reader,
		cfg:        b.cfg,
	}
	b.log().Debug("bin selected", "lid", b.lid, "from", b.idx.Len(), "to", len(picked))
	return derived, nil
}
