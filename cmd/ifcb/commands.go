package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ifcb"
	"github.com/meigma/ifcb/cache/disk"
	"github.com/meigma/ifcb/pid"
)

type env struct {
	cfg    *Config
	logger *slog.Logger
	stdout io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"info":   {"print a summary of each bin", runInfo},
	"verify": {"check that each bin is consistent and readable", runVerify},
	"select": {"write the targets passing a size filter to a directory", runSelect},
	"export": {"write every target image to a directory", runExport},
	"copy":   {"write a bin unchanged to a directory", runCopy},
}

func commandNames() []string {
	return slices.Sorted(maps.Keys(commands))
}

// open opens the bin at loc, a local path or an http(s) URL.
func (e *env) open(ctx context.Context, loc string) (*ifcb.Bin, error) {
	opts := append(e.cfg.BinOptions(), ifcb.WithLogger(e.logger))
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		if e.cfg.CacheDir != "" {
			bc, err := disk.New(e.cfg.CacheDir,
				disk.WithMaxBytes(e.cfg.CacheMaxBytes),
				disk.WithLogger(e.logger))
			if err != nil {
				return nil, fmt.Errorf("open block cache: %w", err)
			}
			opts = append(opts, ifcb.WithBlockCache(bc))
		}
		return ifcb.OpenURL(ctx, binStem(loc), opts...)
	}
	return ifcb.OpenFileset(filepath.Dir(loc), binStem(filepath.Base(loc)), opts...)
}

// binStem strips a compression and an artifact extension from name.
func binStem(name string) string {
	name = strings.TrimSuffix(name, pid.CompressedExt)
	for _, a := range pid.Artifacts {
		if s, ok := strings.CutSuffix(name, a.Ext()); ok {
			return s
		}
	}
	return name
}

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ifcb %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func runInfo(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("info", "<bin>...")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("info: no bins given")
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	for _, loc := range fs.Args() {
		b, err := e.open(ctx, loc)
		if err != nil {
			return err
		}
		images := 0
		for range b.ImageTargets() {
			images++
		}
		id := b.ID()
		fmt.Fprintf(tw, "lid:\t%s\n", b.LID())
		if !id.IsZero() {
			fmt.Fprintf(tw, "instrument:\tIFCB%d\n", id.Instrument)
			fmt.Fprintf(tw, "timestamp:\t%s\n", id.Timestamp.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "schema:\tv%d\n", b.SchemaVersion())
		fmt.Fprintf(tw, "targets:\t%d\n", b.Len())
		fmt.Fprintf(tw, "images:\t%d\n", images)
		fmt.Fprintf(tw, "blob bytes:\t%d\n", b.BlobSize())
		for _, w := range b.Warnings() {
			fmt.Fprintf(tw, "warning:\t%v\n", w)
		}
		fmt.Fprintln(tw)
		if err := b.Close(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runVerify(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("verify", "<bin>...")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("verify: no bins given")
	}
	failed := 0
	for _, loc := range fs.Args() {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := verify(ctx, e, loc)
		if err != nil {
			failed++
			fmt.Fprintf(e.stdout, "FAIL %s: %v\n", loc, err)
			continue
		}
		fmt.Fprintf(e.stdout, "ok   %s %s\n", loc, d)
	}
	if failed > 0 {
		return fmt.Errorf("verify: %d of %d bins failed", failed, fs.NArg())
	}
	return nil
}

// verify opens a bin, reads every target's pixels and returns the digest of
// its pixel blob.
func verify(ctx context.Context, e *env, loc string) (digest.Digest, error) {
	b, err := e.open(ctx, loc)
	if err != nil {
		return "", err
	}
	defer b.Close()
	d, err := b.BlobDigest()
	if err != nil {
		return "", err
	}
	if w := b.Warnings(); len(w) > 0 {
		return "", errors.Join(w...)
	}
	return d, nil
}

func runSelect(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("select", "<bin> <dir>")
	minWidth := fs.Int64("min-width", 0, "Keep targets at least this wide")
	minHeight := fs.Int64("min-height", 0, "Keep targets at least this tall")
	imagesOnly := fs.Bool("images-only", false, "Drop targets without an image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("select: want a bin and an output directory")
	}
	b, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer b.Close()

	sub, err := b.Select(func(t ifcb.Target) bool {
		if *imagesOnly && !t.HasImage() {
			return false
		}
		return t.Width >= *minWidth && t.Height >= *minHeight
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	res, err := sub.WriteFileset(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: kept %d of %d targets (%d pixel bytes)\n", res.Header.Path, sub.Len(), b.Len(), res.Blob.Size)
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("export", "<bin> <dir>")
	format := fs.String("format", "png", "Image format (png, raw)")
	overwrite := fs.Bool("overwrite", false, "Replace existing images")
	workers := fs.Int("workers", 0, "Encoding workers (0 = automatic)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("export: want a bin and an output directory")
	}
	var f ifcb.ImageFormat
	switch *format {
	case "png":
		f = ifcb.FormatPNG
	case "raw":
		f = ifcb.FormatRaw
	default:
		return fmt.Errorf("export: unknown format %q", *format)
	}

	b, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer b.Close()

	sink, err := ifcb.NewDirSink(fs.Arg(1), ifcb.SinkWithFormat(f), ifcb.SinkWithOverwrite(*overwrite))
	if err != nil {
		return err
	}
	defer sink.Close()

	opts := e.cfg.ExportOptions()
	if *workers != 0 {
		opts = append(opts, ifcb.ExportWithWorkers(*workers))
	}
	stats, err := b.Export(ctx, sink, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: exported %d images, skipped %d\n", b.LID(), stats.Processed, stats.Skipped)
	return nil
}

func runCopy(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("copy", "<bin> <dir>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("copy: want a bin and an output directory")
	}
	b, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.WriteFileset(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	for _, a := range []ifcb.ArtifactInfo{res.Header, res.Table, res.Blob} {
		fmt.Fprintf(e.stdout, "%s  %s\n", a.Digest, a.Path)
	}
	return nil
}
