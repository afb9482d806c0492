package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/refinery/logging"
)

// DefaultMaxIterations bounds a loop constructed without WithMaxIterations.
const DefaultMaxIterations = 5

// Critic reviews the current document and returns feedback. Returning the
// loop's sentinel value signals approval. Implementations must not retain or
// mutate loop state; they only see the document they are given.
type Critic interface {
	Critique(ctx context.Context, document string) (string, error)
}

// CriticFunc adapts an ordinary function to the Critic interface.
type CriticFunc func(ctx context.Context, document string) (string, error)

// Critique implements Critic.
func (f CriticFunc) Critique(ctx context.Context, document string) (string, error) {
	return f(ctx, document)
}

// Refinement is the tagged result of a refine step.
type Refinement struct {
	// Document is the (possibly unchanged) document produced by the step.
	Document string
	// Exit requests termination of the loop after the current iteration.
	Exit bool
}

// Refiner applies feedback to a document. It either returns an improved
// document or signals completion through Refinement.Exit.
type Refiner interface {
	Refine(ctx context.Context, document, feedback string) (Refinement, error)
}

// RefinerFunc adapts an ordinary function to the Refiner interface.
type RefinerFunc func(ctx context.Context, document, feedback string) (Refinement, error)

// Refine implements Refiner.
func (f RefinerFunc) Refine(ctx context.Context, document, feedback string) (Refinement, error) {
	return f(ctx, document, feedback)
}

// Result describes how a run ended.
//
// Converged and Iterations are surfaced explicitly so callers can tell an
// approved document apart from one that merely ran out of iteration budget.
type Result struct {
	Document   string // final (or last known good) document
	Converged  bool   // refine step signalled exit before the cap was hit
	Iterations int    // completed (critique, refine) passes
	Feedback   string // most recent successful critique output
}

// Loop drives a critique/refine cycle over an evolving document.
//
// A Loop is immutable once constructed and safe for concurrent Run calls;
// every run owns its own document, feedback and iteration counter.
type Loop struct {
	name        string
	critic      Critic
	refiner     Refiner
	maxIters    int
	interval    time.Duration
	stepTimeout time.Duration
	retry       RetryPolicy
	observers   []Observer
	logger      logging.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithName sets the name used in logs and errors.
func WithName(name string) Option {
	return func(l *Loop) { l.name = name }
}

// WithMaxIterations sets the iteration cap. Values below 1 make Run fail with
// a configuration error.
func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.maxIters = n }
}

// WithInterval sets a delay between iterations. No delay follows the last one.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithStepTimeout bounds every individual critique and refine call.
func WithStepTimeout(d time.Duration) Option {
	return func(l *Loop) { l.stepTimeout = d }
}

// WithRetry sets the policy used when a single step fails with a retryable
// error. The default policy never retries.
func WithRetry(p RetryPolicy) Option {
	return func(l *Loop) { l.retry = p }
}

// WithObserver registers a lifecycle observer. Observers run synchronously
// in registration order.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a loop around a critic and a refiner.
//
// Defaults: DefaultMaxIterations, no interval, no step timeout, no retries.
func New(critic Critic, refiner Refiner, opts ...Option) *Loop {
	l := &Loop{
		name:     "RefinementLoop",
		critic:   critic,
		refiner:  refiner,
		maxIters: DefaultMaxIterations,
		retry:    NoRetry(),
		logger:   logging.NoOpLogger{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// With returns a copy of the loop with additional options applied. It is the
// way to attach per-run observers or loggers to a shared Loop.
func (l *Loop) With(opts ...Option) *Loop {
	nl := *l
	nl.observers = append([]Observer(nil), l.observers...)
	for _, o := range opts {
		o(&nl)
	}
	return &nl
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.name }

// MaxIterations returns the configured iteration cap.
func (l *Loop) MaxIterations() int { return l.maxIters }

// Run is the one-shot form of New(critic, refiner, WithMaxIterations(maxIterations)).Run.
func Run(ctx context.Context, initial string, maxIterations int, critic Critic, refiner Refiner) (Result, error) {
	return New(critic, refiner, WithMaxIterations(maxIterations)).Run(ctx, initial)
}

// Run executes the refinement cycle starting from initial.
//
// Each iteration calls the critic on the current document and then the
// refiner with the document and the feedback. The loop stops when the
// refiner sets Exit or after the configured number of iterations. Reaching
// the cap is not an error.
//
// On a step failure Run returns a *StepError together with the state as it
// was before the failed step. Context cancellation is observed between
// iterations; the result then holds the last completed document.
func (l *Loop) Run(ctx context.Context, initial string) (Result, error) {
	res := Result{Document: initial}

	if err := l.validate(); err != nil {
		return res, err
	}

	l.notifyRunStart(ctx, initial)

	for res.Iterations < l.maxIters {
		iteration := res.Iterations + 1

		select {
		case <-ctx.Done():
			err := fmt.Errorf("loop %s cancelled before iteration %d: %w", l.name, iteration, ctx.Err())
			return l.finish(ctx, res, err)
		default:
		}

		l.logger.Debug("loop starting iteration", "loop", l.name, "iteration", iteration)
		l.notifyIterationStart(ctx, iteration, res.Document)

		l.notifyState(ctx, iteration, StateCritiquing)
		feedback, err := callStep(ctx, l, StepCritique, iteration, res.Document, func(stepCtx context.Context) (string, error) {
			return l.critic.Critique(stepCtx, res.Document)
		})
		if err != nil {
			return l.finish(ctx, res, err)
		}
		res.Feedback = feedback

		l.notifyState(ctx, iteration, StateRefining)
		refined, err := callStep(ctx, l, StepRefine, iteration, res.Document, func(stepCtx context.Context) (Refinement, error) {
			return l.refiner.Refine(stepCtx, res.Document, feedback)
		})
		if err != nil {
			return l.finish(ctx, res, err)
		}

		res.Document = refined.Document
		res.Iterations = iteration

		if refined.Exit {
			res.Converged = true
			l.logger.Debug("loop exit signalled", "loop", l.name, "iteration", iteration)
			break
		}

		if l.interval > 0 && iteration < l.maxIters {
			select {
			case <-ctx.Done():
				err := fmt.Errorf("loop %s cancelled after iteration %d: %w", l.name, iteration, ctx.Err())
				return l.finish(ctx, res, err)
			case <-time.After(l.interval):
			}
		}
	}

	if !res.Converged {
		l.logger.Info("loop reached iteration cap", "loop", l.name, "max_iterations", l.maxIters)
	}

	return l.finish(ctx, res, nil)
}

func (l *Loop) validate() error {
	if l.maxIters < 1 {
		return &ConfigError{Field: "max_iterations", Value: l.maxIters, Err: ErrInvalidMaxIterations}
	}
	if l.critic == nil {
		return &ConfigError{Field: "critic", Err: ErrMissingStep}
	}
	if l.refiner == nil {
		return &ConfigError{Field: "refiner", Err: ErrMissingStep}
	}
	return nil
}

func (l *Loop) finish(ctx context.Context, res Result, err error) (Result, error) {
	l.notifyState(ctx, res.Iterations, StateDone)
	l.notifyRunEnd(ctx, res, err)
	return res, err
}

// callStep runs one step under the loop's timeout and retry policy and
// reports its outcome to observers.
func callStep[T any](
	ctx context.Context,
	l *Loop,
	step Step,
	iteration int,
	input string,
	fn func(context.Context) (T, error),
) (T, error) {
	start := time.Now()

	policy := l.retry
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		l.logger.Warn("retrying step", "loop", l.name, "step", step.String(), "iteration", iteration,
			"attempt", attempt, "delay", delay, "error", err.Error())
		if userOnRetry != nil {
			userOnRetry(err, attempt, delay)
		}
	}

	out, err := Retry(ctx, policy, func(ctx context.Context) (T, error) {
		if l.stepTimeout <= 0 {
			return fn(ctx)
		}
		stepCtx, cancel := context.WithTimeout(ctx, l.stepTimeout)
		defer cancel()
		return fn(stepCtx)
	})

	info := StepInfo{
		Step:      step,
		Iteration: iteration,
		Input:     input,
		Duration:  time.Since(start),
		Err:       err,
	}
	switch v := any(out).(type) {
	case string:
		info.Output = v
	case Refinement:
		info.Output = v.Document
		info.Exit = v.Exit
	}
	l.notifyStep(ctx, info)

	if err != nil {
		var zero T
		return zero, &StepError{Loop: l.name, Step: step, Iteration: iteration, Err: err}
	}
	return out, nil
}
