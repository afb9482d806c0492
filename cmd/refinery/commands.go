package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"

	"github.com/hupe1980/refinery/catalog"
	"github.com/hupe1980/refinery/events"
	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/store"
)

const shutdownTimeout = 5 * time.Second

// RunCmd refines a single topic.
type RunCmd struct {
	Topic   string `short:"t" help:"Topic for the initial draft (defaults to the configured topic)."`
	JSON    bool   `help:"Print the run record as JSON."`
	Verbose bool   `short:"v" help:"Print every critique and refinement."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newConsole(os.Stdout, c.Verbose)
	a, err := newApp(cfg, progressSink(out, c.JSON), os.Stderr)
	if err != nil {
		return err
	}
	defer closeApp(a)

	rec, runErr := a.runner.Run(ctx, c.Topic)
	if err := report(os.Stdout, out, c.JSON, rec); err != nil {
		return err
	}
	return runErr
}

// BatchCmd refines several topics with bounded concurrency.
type BatchCmd struct {
	Topics  []string `arg:"" optional:"" help:"Topics to refine."`
	File    string   `short:"f" help:"Read topics from a file, one per line." type:"existingfile"`
	JSON    bool     `help:"Print the run records as JSON."`
	Verbose bool     `short:"v" help:"Print every critique and refinement."`
}

func (c *BatchCmd) Run(cli *CLI) error {
	topics := append([]string(nil), c.Topics...)
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return fmt.Errorf("failed to open topics file: %w", err)
		}
		fileTopics, err := readTopics(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		topics = append(topics, fileTopics...)
	}
	if len(topics) == 0 {
		return fmt.Errorf("no topics given: pass them as arguments or with --file")
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newConsole(os.Stdout, c.Verbose)
	a, err := newApp(cfg, progressSink(out, c.JSON), os.Stderr)
	if err != nil {
		return err
	}
	defer closeApp(a)

	records, runErr := a.runner.RunBatch(ctx, topics)
	if c.JSON {
		if err := writeJSON(os.Stdout, records); err != nil {
			return err
		}
		return runErr
	}
	for _, rec := range records {
		out.Record(rec)
	}
	return runErr
}

// CatalogCmd renders the integrations catalog.
type CatalogCmd struct {
	Docs        string `help:"Docs root; card links are relative to it." type:"path" default:"docs"`
	Pattern     string `help:"Glob pattern, relative to --docs, selecting pages." default:"integrations/*.md"`
	Out         string `short:"o" help:"Output file (default stdout)." type:"path"`
	BasePath    string `name:"base-path" help:"URL prefix for card links and relative icons." default:"/adk-docs"`
	DefaultIcon string `name:"default-icon" help:"Icon used when a page declares none."`
}

func (c *CatalogCmd) Run(cli *CLI) error {
	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewSlogLogger(level, cli.LogFormat, false).WithComponent("catalog")

	opts := catalog.DefaultOptions()
	opts.BasePath = c.BasePath
	if c.DefaultIcon != "" {
		opts.DefaultIcon = c.DefaultIcon
	}
	opts.Logger = logger

	entries, err := catalog.Load(os.DirFS(c.Docs), c.Pattern, opts)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", c.Out, err)
		}
		defer f.Close()
		w = f
	}

	if err := catalog.Render(w, entries, opts); err != nil {
		return err
	}
	if c.Out != "" {
		fmt.Fprintf(os.Stderr, "%s %d entries written to %s\n", color.GreenString("catalog:"), len(entries), c.Out)
	}
	return nil
}

// progressSink returns the console as event sink unless output is JSON.
func progressSink(c *console, jsonOut bool) events.Sink {
	if jsonOut {
		return nil
	}
	return c
}

func report(w io.Writer, c *console, jsonOut bool, rec store.RunRecord) error {
	if jsonOut {
		return writeJSON(w, rec)
	}
	c.Record(rec)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readTopics returns the non-empty lines of r. Lines starting with # are
// comments.
func readTopics(r io.Reader) ([]string, error) {
	var topics []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		topics = append(topics, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topics: %w", err)
	}
	return topics, nil
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("Shutdown incomplete", "error", err.Error())
	}
}
