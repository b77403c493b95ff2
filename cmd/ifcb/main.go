// Command ifcb inspects, verifies, subsets, exports and copies IFCB bins.
//
// A bin is named by the path of any of its artifacts, by its path without
// an extension, or by an http(s) URL without an extension:
//
//	ifcb info data/D20160714T023910_IFCB101
//	ifcb verify data/*.hdr
//	ifcb select -min-width 40 data/D20160714T023910_IFCB101 out/
//	ifcb export -format png https://example.org/data/D20160714T023910_IFCB101 images/
//	ifcb copy data/D20160714T023910_IFCB101.hdr.zst out/
//
// Settings are read from an optional YAML file (-config, default
// ifcb.yaml) and overridden by flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

const defaultConfigPath = "ifcb.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := mainImpl(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "ifcb: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func mainImpl(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ifcb", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }
	configPath := fs.String("config", defaultConfigPath, "YAML config file")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	schemaVersion := fs.Int("schema-version", 0, "Override the schema version declared by headers")
	validation := fs.String("validation", "", "Validation mode (strict, lenient)")
	cacheDir := fs.String("cache-dir", "", "Block cache directory for remote bins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage(fs)
		return errors.New("missing command")
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	cfg, err := LoadConfig(*configPath, !set["config"])
	if err != nil {
		return err
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["schema-version"] {
		cfg.SchemaVersion = *schemaVersion
	}
	if set["validation"] {
		cfg.Validation = *validation
	}
	if set["cache-dir"] {
		cfg.CacheDir = *cacheDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Level() //nolint:errcheck // checked by Validate
	logger := newLogger(os.Stderr, level)

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		usage(fs)
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}
	return cmd.run(ctx, &env{cfg: cfg, logger: logger, stdout: stdout}, fs.Args()[1:])
}

func newLogger(w *os.File, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}))
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "usage: ifcb [flags] <command> [args]\n\ncommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(out, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(out, "\nflags:\n")
	fs.PrintDefaults()
}
