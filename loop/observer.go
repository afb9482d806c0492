package loop

import (
	"context"
	"time"
)

// StepInfo describes a finished critique or refine call.
type StepInfo struct {
	Step      Step
	Iteration int
	Input     string // document handed to the step
	Output    string // feedback (critique) or document (refine)
	Exit      bool   // refine only
	Duration  time.Duration
	Err       error
}

// Observer receives synchronous lifecycle notifications from a run.
// Implementations must be fast; they run on the loop's goroutine.
type Observer interface {
	OnRunStart(ctx context.Context, initial string)
	OnIterationStart(ctx context.Context, iteration int, document string)
	OnStateChange(ctx context.Context, iteration int, state State)
	OnStepComplete(ctx context.Context, info StepInfo)
	OnRunEnd(ctx context.Context, res Result, err error)
}

// Hooks implements Observer from optional function fields.
type Hooks struct {
	RunStart       func(ctx context.Context, initial string)
	IterationStart func(ctx context.Context, iteration int, document string)
	StateChange    func(ctx context.Context, iteration int, state State)
	StepComplete   func(ctx context.Context, info StepInfo)
	RunEnd         func(ctx context.Context, res Result, err error)
}

var _ Observer = Hooks{}

// OnRunStart implements Observer.
func (h Hooks) OnRunStart(ctx context.Context, initial string) {
	if h.RunStart != nil {
		h.RunStart(ctx, initial)
	}
}

// OnIterationStart implements Observer.
func (h Hooks) OnIterationStart(ctx context.Context, iteration int, document string) {
	if h.IterationStart != nil {
		h.IterationStart(ctx, iteration, document)
	}
}

// OnStateChange implements Observer.
func (h Hooks) OnStateChange(ctx context.Context, iteration int, state State) {
	if h.StateChange != nil {
		h.StateChange(ctx, iteration, state)
	}
}

// OnStepComplete implements Observer.
func (h Hooks) OnStepComplete(ctx context.Context, info StepInfo) {
	if h.StepComplete != nil {
		h.StepComplete(ctx, info)
	}
}

// OnRunEnd implements Observer.
func (h Hooks) OnRunEnd(ctx context.Context, res Result, err error) {
	if h.RunEnd != nil {
		h.RunEnd(ctx, res, err)
	}
}

func (l *Loop) notifyRunStart(ctx context.Context, initial string) {
	for _, o := range l.observers {
		o.OnRunStart(ctx, initial)
	}
}

func (l *Loop) notifyIterationStart(ctx context.Context, iteration int, document string) {
	for _, o := range l.observers {
		o.OnIterationStart(ctx, iteration, document)
	}
}

func (l *Loop) notifyState(ctx context.Context, iteration int, state State) {
	for _, o := range l.observers {
		o.OnStateChange(ctx, iteration, state)
	}
}

func (l *Loop) notifyStep(ctx context.Context, info StepInfo) {
	for _, o := range l.observers {
		o.OnStepComplete(ctx, info)
	}
}

func (l *Loop) notifyRunEnd(ctx context.Context, res Result, err error) {
	for _, o := range l.observers {
		o.OnRunEnd(ctx, res, err)
	}
}
