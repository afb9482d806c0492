// Package events publishes refinement lifecycle events to pluggable sinks.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/refinery/core"
)

// Kind names an event type.
type Kind string

// Event kinds.
const (
	KindRunStarted       Kind = "run_started"
	KindIterationStarted Kind = "iteration_started"
	KindStepCompleted    Kind = "step_completed"
	KindStepFailed       Kind = "step_failed"
	KindRunCompleted     Kind = "run_completed"
	KindRunFailed        Kind = "run_failed"
)

// Event is one lifecycle notification of a run.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Iteration int       `json:"iteration,omitempty"`
	Step      string    `json:"step,omitempty"`
	Document  string    `json:"document,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	Converged bool      `json:"converged,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh id and the current time.
func New(runID string, kind Kind) Event {
	return Event{ID: core.NewID(), RunID: runID, Kind: kind, Timestamp: time.Now().UTC()}
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelSink forwards events to a channel. Publish blocks until the event
// is accepted or ctx is done.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, buffer)}
}

// Publish implements Sink.
func (s *ChannelSink) Publish(ctx context.Context, ev Event) error {
	select {
	case s.C <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order, optionally restricted to one run.
func (r *Recorder) Kinds(runID string) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []Kind
	for _, ev := range r.events {
		if runID == "" || ev.RunID == runID {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}
