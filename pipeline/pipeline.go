// Package pipeline chains an initial drafting stage with a refinement loop.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/steps"
)

// Stage names reported in StageError.
const (
	StageDraft  = "draft"
	StageRefine = "refine"
)

// Drafter produces the first version of a document for a topic.
type Drafter interface {
	Write(ctx context.Context, topic string) (string, error)
}

// DrafterFunc adapts an ordinary function to the Drafter interface.
type DrafterFunc func(ctx context.Context, topic string) (string, error)

// Write implements Drafter.
func (f DrafterFunc) Write(ctx context.Context, topic string) (string, error) {
	return f(ctx, topic)
}

// StageError reports which stage of a pipeline failed.
type StageError struct {
	Pipeline string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s failed at stage %s: %v", e.Pipeline, e.Stage, e.Err)
}

// Unwrap returns the stage failure.
func (e *StageError) Unwrap() error { return e.Err }

// Outcome is what a pipeline run produced. On failure it still carries the
// draft and the last known good loop state.
type Outcome struct {
	Topic  string
	Draft  string
	Result loop.Result
}

// Pipeline runs a drafter once and then refines its output.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	name         string
	drafter      Drafter
	loop         *loop.Loop
	defaultTopic string
	logger       *logging.RunLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithName sets the pipeline name.
func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

// WithDefaultTopic sets the topic used when Run receives an empty one.
func WithDefaultTopic(topic string) Option {
	return func(p *Pipeline) { p.defaultTopic = topic }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.RunLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline from a drafter and a refinement loop.
func New(drafter Drafter, l *loop.Loop, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:         "IterativeWritingPipeline",
		drafter:      drafter,
		loop:         l,
		defaultTopic: steps.DefaultTopic,
		logger:       logging.Discard(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Loop returns the refinement loop.
func (p *Pipeline) Loop() *loop.Loop { return p.loop }

// Run drafts a document for topic and refines it. Extra loop options apply
// to this run only.
func (p *Pipeline) Run(ctx context.Context, topic string, opts ...loop.Option) (Outcome, error) {
	if strings.TrimSpace(topic) == "" {
		topic = p.defaultTopic
	}
	out := Outcome{Topic: topic}
	logger := p.logger.WithComponent("pipeline").WithContext("pipeline", p.name)

	start := time.Now()
	draft, err := p.drafter.Write(ctx, topic)
	logger.LogStep(StageDraft, 0, time.Since(start), err)
	if err != nil {
		return out, &StageError{Pipeline: p.name, Stage: StageDraft, Err: err}
	}
	out.Draft = draft
	out.Result = loop.Result{Document: draft}

	l := p.loop
	if len(opts) > 0 {
		l = l.With(opts...)
	}

	res, err := l.Run(ctx, draft)
	out.Result = res
	if err != nil {
		return out, &StageError{Pipeline: p.name, Stage: StageRefine, Err: err}
	}
	return out, nil
}
