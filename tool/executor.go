package tool

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/logging"
)

// CallResult is the outcome of one function call within a batch.
type CallResult struct {
	Call     core.FunctionCall
	Value    any
	Response core.FunctionResponse
	Err      error
	Duration time.Duration
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxParallel limits concurrent calls; values below 1 mean one goroutine
	// per call.
	MaxParallel int
	// Logger receives one line per executed call.
	Logger logging.Logger
}

// Executor runs batches of function calls against a Set.
type Executor struct {
	set  *Set
	opts ExecutorOptions
}

// NewExecutor creates an Executor for set.
func NewExecutor(set *Set, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{set: set, opts: opts}
}

// Run executes calls and returns exactly one result per call, in call
// order. Calls not started before ctx is done report ctx.Err().
func (e *Executor) Run(ctx context.Context, calls []core.FunctionCall) []CallResult {
	n := len(calls)
	results := make([]CallResult, n)
	if n == 0 {
		return results
	}

	if n == 1 {
		results[0] = e.execute(ctx, calls[0])
		return results
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	for i, call := range calls {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = cancelled(call, ctx.Err())
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results[i] = cancelled(call, err)
				return
			}
			results[i] = e.execute(ctx, call)
		}()
	}

	wg.Wait()
	return results
}

func (e *Executor) execute(ctx context.Context, call core.FunctionCall) CallResult {
	start := time.Now()
	value, resp, err := e.set.Execute(ctx, call)
	res := CallResult{Call: call, Value: value, Response: resp, Err: err, Duration: time.Since(start)}

	e.opts.Logger.Debug("Tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration", res.Duration,
		"success", err == nil,
	)
	return res
}

func cancelled(call core.FunctionCall, err error) CallResult {
	return CallResult{
		Call:     call,
		Response: core.FunctionResponse{ID: call.ID, Name: call.Name, Error: err.Error()},
		Err:      err,
	}
}
