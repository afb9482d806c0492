package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/events"
	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/metrics"
	"github.com/hupe1980/refinery/pipeline"
	"github.com/hupe1980/refinery/store"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits parallel runs inside RunBatch.
	MaxConcurrentRuns int
	// Store persists run records.
	Store store.Store
	// Sinks receive lifecycle events.
	Sinks []events.Sink
	// Metrics records run and step metrics.
	Metrics *metrics.Recorder
	// Logger is the base logger; each run derives a child with its id.
	Logger *logging.RunLogger
}

// Runner coordinates pipeline execution. Public methods are safe for
// concurrent use.
type Runner struct {
	pipeline *pipeline.Pipeline

	maxConcurrentRuns int
	store             store.Store
	sink              events.Sink
	metrics           *metrics.Recorder
	logger            *logging.RunLogger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(p *pipeline.Pipeline, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 4,
		Store:             store.NewInMemoryStore(),
		Metrics:           metrics.NoOp(),
		Logger:            logging.Discard(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 1
	}

	return &Runner{
		pipeline:          p,
		maxConcurrentRuns: opts.MaxConcurrentRuns,
		store:             opts.Store,
		sink:              events.Multi(opts.Sinks),
		metrics:           opts.Metrics,
		logger:            opts.Logger.WithComponent("runner"),
		activeRuns:        make(map[string]context.CancelFunc),
	}
}

// Store returns the record store.
func (r *Runner) Store() store.Store { return r.store }

// Run executes the pipeline for topic and returns the final record. The
// record is returned, and persisted, even when the run fails.
func (r *Runner) Run(ctx context.Context, topic string) (store.RunRecord, error) {
	runID := core.NewID()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	logger := r.logger.WithRun(runID)
	rec := store.RunRecord{
		ID:        runID,
		Topic:     topic,
		Status:    store.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	r.save(ctx, logger, rec)

	started := events.New(runID, events.KindRunStarted)
	r.publish(ctx, logger, started)
	logger.Info("Run started", "topic", topic, "pipeline", r.pipeline.Name())

	history := &historyObserver{}
	out, err := r.pipeline.Run(ctx, topic,
		loop.WithLogger(logger.WithComponent("loop")),
		loop.WithObserver(events.NewObserver(r.sink, runID, logger)),
		loop.WithObserver(r.metrics.Observer()),
		loop.WithObserver(history),
	)

	rec.Topic = out.Topic
	rec.Draft = out.Draft
	rec.Document = out.Result.Document
	rec.Feedback = out.Result.Feedback
	rec.Iterations = out.Result.Iterations
	rec.Converged = out.Result.Converged
	rec.History = history.revisions
	rec.FinishedAt = time.Now().UTC()
	rec.Status = store.StatusSucceeded

	final := events.New(runID, events.KindRunCompleted)
	if err != nil {
		rec.Status = store.StatusFailed
		rec.Error = err.Error()
		final.Kind = events.KindRunFailed
		final.Error = err.Error()
	}
	final.Iteration = rec.Iterations
	final.Document = rec.Document
	final.Feedback = rec.Feedback
	final.Converged = rec.Converged

	r.save(ctx, logger, rec)
	r.publish(ctx, logger, final)
	r.metrics.RecordRun(context.WithoutCancel(ctx), out.Result, err)
	logger.LogRunCompletion(rec.Iterations, rec.Converged, rec.Duration(), err)

	if err != nil {
		return rec, fmt.Errorf("run %s: %w", runID, err)
	}
	return rec, nil
}

// RunBatch runs every topic with at most MaxConcurrentRuns in flight.
// Records are returned in input order. Failures are joined into the
// returned error; they do not cancel other runs.
func (r *Runner) RunBatch(ctx context.Context, topics []string) ([]store.RunRecord, error) {
	records := make([]store.RunRecord, len(topics))
	errs := make([]error, len(topics))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrentRuns)

	for i, topic := range topics {
		g.Go(func() error {
			rec, err := r.Run(ctx, topic)
			records[i] = rec
			if err != nil {
				errs[i] = fmt.Errorf("topic %d (%q): %w", i, topic, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return records, errors.Join(errs...)
}

// Cancel cancels an active run by id.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// Active returns the ids of runs in progress.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

func (r *Runner) save(ctx context.Context, logger *logging.RunLogger, rec store.RunRecord) {
	if err := r.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("Failed to save run record", "status", string(rec.Status), "error", err.Error())
	}
}

func (r *Runner) publish(ctx context.Context, logger *logging.RunLogger, ev events.Event) {
	if err := r.sink.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("Failed to publish event", "kind", string(ev.Kind), "error", err.Error())
	}
}

// historyObserver captures the document after every completed iteration.
type historyObserver struct {
	loop.Hooks
	feedback  string
	revisions []store.Revision
}

func (h *historyObserver) OnStepComplete(_ context.Context, info loop.StepInfo) {
	if info.Err != nil {
		return
	}
	switch info.Step {
	case loop.StepCritique:
		h.feedback = info.Output
	case loop.StepRefine:
		h.revisions = append(h.revisions, store.Revision{
			Iteration: info.Iteration,
			Feedback:  h.feedback,
			Document:  info.Output,
		})
	}
}
