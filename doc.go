// Package ifcb reads and writes imaging-flow-cytometry bins in their native
// three-file layout.
//
// Every acquisition run ("bin") is stored as three sibling files sharing the
// run identifier as stem:
//   - <lid>.hdr: the run header, "key: value" or "key = value" text
//   - <lid>.adc: the feature table, one comma-delimited row per target
//   - <lid>.roi: the pixel blob, every target image concatenated
//
// The pixel blob has no framing of its own. Each target's byte range is
// derived from the width and height columns of its feature row: the first
// target starts at offset zero and every following target starts where the
// previous one ended. A bin only loads if the derived ranges cover the pixel
// blob exactly and the table holds as many rows as the header declares.
//
// # Reading
//
//	b, err := ifcb.OpenFileset("/data/2016", "D20160714T023910_IFCB101")
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	for t := range b.ImageTargets() {
//	    img, err := b.Image(t.Index)
//	    ...
//	}
//
// # Selecting and writing
//
// Select derives a new bin from a subset of targets without touching the
// source. Writing an unmodified bin reproduces its files byte for byte:
//
//	large, err := b.Select(func(t ifcb.Target) bool { return t.Width > 64 })
//	if err != nil {
//	    return err
//	}
//	defer large.Close()
//	_, err = large.WriteFileset(ctx, "/data/large")
//
// # Remote bins
//
// OpenURL reads a bin served over HTTP. The header and feature table are
// downloaded; pixels are fetched with range requests as targets are read,
// optionally through a disk block cache:
//
//	bc, err := disk.New(cacheDir)
//	...
//	b, err := ifcb.OpenURL(ctx, "https://example.org/data/D20160714T023910_IFCB101",
//	    ifcb.WithBlockCache(bc))
//
// # Export
//
// Export streams target images into a sink such as a directory of PNG files:
//
//	sink, err := ifcb.NewDirSink("/tmp/images")
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//	stats, err := b.Export(ctx, sink, ifcb.ExportWithReadConcurrency(8))
package ifcb
