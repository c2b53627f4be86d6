// Command privkit runs the privkit document and data tools from the
// command line. Every tool works on local files only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/config"
	"github.com/wudi/privkit/observability"
)

// errUsage marks bad invocations; they exit with status 2.
var errUsage = errors.New("usage error")

type app struct {
	cfg     *config.Config
	logger  observability.Logger
	tracker observability.Tracker
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"strip":     {"remove metadata from JPEG, PNG and PDF files", runStrip},
	"redact":    {"draw redaction boxes over PDF page areas", runRedact},
	"merge":     {"concatenate PDF files", runMerge},
	"split":     {"split a PDF by page ranges or into single pages", runSplit},
	"compress":  {"shrink a PDF", runCompress},
	"convert":   {"convert images between formats", runConvert},
	"img2pdf":   {"place images on PDF pages", runImg2PDF},
	"text":      {"extract text from a PDF", runText},
	"info":      {"show PDF properties and metadata", runInfo},
	"verify":    {"validate PDF structure", runVerify},
	"base64":    {"encode or decode Base64", runBase64},
	"format":    {"format, minify, validate or convert JSON, YAML and XML", runFormat},
	"lines":     {"deduplicate, sort and transform line lists", runLines},
	"md2html":   {"render Markdown as HTML", runMarkdown},
	"html2text": {"extract readable text from HTML", runHTMLToText},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "privkit: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "privkit: config: %v\n", err)
		return 1
	}
	logger := observability.NewLogrus(cfg.LogLevel, cfg.LogFormat, stderr).
		With(observability.String("command", args[0]))
	a := &app{
		cfg:     cfg,
		logger:  logger,
		tracker: observability.LogTracker{Logger: logger},
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "privkit %s: %v\n", args[0], err)
			return 2
		}
		logger.Debug("command failed", observability.Error("error", err))
		fmt.Fprintf(stderr, "privkit %s: %s\n", args[0], apperr.UserMessage(err))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: privkit <command> [flags] [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nRun 'privkit <command> -h' for command flags.\n")
}

// newFlags returns a flag set that reports errors instead of exiting.
func (a *app) newFlags(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: privkit %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parse wraps flag errors so they exit with status 2.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func usageErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// readInput reads a file, or stdin for "-" or an empty path.
func (a *app) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "cannot read input file", err)
	}
	return data, nil
}

// writeOutput writes to a file, or stdout for "-" or an empty path.
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.KindInternal, "cannot create output directory", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindInternal, "cannot write output file", err)
	}
	a.logger.Info("wrote file", observability.String("path", path), observability.Int("bytes", len(data)))
	return nil
}

// readText reads the joined positional arguments, or stdin when there are
// none.
func (a *app) readText(fs *flag.FlagSet, file string) (string, error) {
	if file != "" {
		data, err := a.readInput(file)
		return string(data), err
	}
	if fs.NArg() > 0 {
		return strings.Join(fs.Args(), " "), nil
	}
	data, err := io.ReadAll(a.stdin)
	return string(data), err
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.stdout, format, args...)
}
