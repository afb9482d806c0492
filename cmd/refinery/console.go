package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/hupe1980/refinery/events"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/store"
)

// console prints run progress and results.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

func newConsole(out io.Writer, verbose bool) *console {
	return &console{out: out, verbose: verbose}
}

// Publish implements events.Sink.
func (c *console) Publish(_ context.Context, ev events.Event) error {
	line := c.format(ev)
	if line == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

func (c *console) format(ev events.Event) string {
	run := color.MagentaString("[%s]", shortID(ev.RunID))

	switch ev.Kind {
	case events.KindRunStarted:
		return fmt.Sprintf("%s started", run)
	case events.KindIterationStarted:
		return fmt.Sprintf("%s iteration %d", run, ev.Iteration)
	case events.KindStepCompleted:
		if !c.verbose {
			return ""
		}
		if ev.Step == loop.StepCritique.String() {
			return fmt.Sprintf("%s   %s %s", run, color.CyanString("critique:"), ev.Feedback)
		}
		return fmt.Sprintf("%s   %s %s", run, color.CyanString("refined:"), ev.Document)
	case events.KindStepFailed:
		return fmt.Sprintf("%s   %s %s", run, color.RedString("%s failed:", ev.Step), ev.Error)
	case events.KindRunCompleted:
		status := color.YellowString("iteration cap reached")
		if ev.Converged {
			status = color.GreenString("converged")
		}
		return fmt.Sprintf("%s %s after %d iteration(s)", run, status, ev.Iteration)
	case events.KindRunFailed:
		return fmt.Sprintf("%s %s %s", run, color.RedString("failed:"), ev.Error)
	default:
		return ""
	}
}

// Record prints the outcome of one run.
func (c *console) Record(rec store.RunRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n%s %s\n", color.New(color.Bold).Sprint("Topic:"), rec.Topic)
	if rec.Status == store.StatusFailed {
		fmt.Fprintf(c.out, "%s %s\n", color.RedString("Error:"), rec.Error)
	}
	fmt.Fprintf(c.out, "%s %d  %s %t\n",
		color.New(color.Bold).Sprint("Iterations:"), rec.Iterations,
		color.New(color.Bold).Sprint("Converged:"), rec.Converged)
	if rec.Document != "" {
		fmt.Fprintf(c.out, "\n%s\n", strings.TrimSpace(rec.Document))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
