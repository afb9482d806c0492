package events

import (
	"context"

	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
)

// Observer turns loop lifecycle callbacks into events for one run. Publish
// failures are logged and never interrupt the loop.
type Observer struct {
	sink   Sink
	runID  string
	logger logging.Logger
}

var _ loop.Observer = (*Observer)(nil)

// NewObserver creates an Observer publishing to sink under runID.
func NewObserver(sink Sink, runID string, logger logging.Logger) *Observer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Observer{sink: sink, runID: runID, logger: logger}
}

// OnRunStart implements loop.Observer. Run level events are emitted by the
// runner, which knows the overall outcome.
func (o *Observer) OnRunStart(context.Context, string) {}

// OnIterationStart implements loop.Observer.
func (o *Observer) OnIterationStart(ctx context.Context, iteration int, document string) {
	ev := New(o.runID, KindIterationStarted)
	ev.Iteration = iteration
	ev.Document = document
	o.publish(ctx, ev)
}

// OnStateChange implements loop.Observer.
func (o *Observer) OnStateChange(context.Context, int, loop.State) {}

// OnStepComplete implements loop.Observer.
func (o *Observer) OnStepComplete(ctx context.Context, info loop.StepInfo) {
	kind := KindStepCompleted
	if info.Err != nil {
		kind = KindStepFailed
	}
	ev := New(o.runID, kind)
	ev.Iteration = info.Iteration
	ev.Step = info.Step.String()
	if info.Err != nil {
		ev.Error = info.Err.Error()
	} else {
		switch info.Step {
		case loop.StepCritique:
			ev.Feedback = info.Output
		case loop.StepRefine:
			ev.Document = info.Output
			ev.Converged = info.Exit
		}
	}
	o.publish(ctx, ev)
}

// OnRunEnd implements loop.Observer.
func (o *Observer) OnRunEnd(context.Context, loop.Result, error) {}

func (o *Observer) publish(ctx context.Context, ev Event) {
	// Publishing must outlive cancellation of the run context.
	if err := o.sink.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("event publish failed", "run_id", o.runID, "kind", string(ev.Kind), "error", err.Error())
	}
}
