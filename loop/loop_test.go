package loop_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refinery/internal/testutil"
	"github.com/hupe1980/refinery/loop"
)

// MockCritic is a testify mock implementing loop.Critic.
type MockCritic struct{ mock.Mock }

func (m *MockCritic) Critique(ctx context.Context, document string) (string, error) {
	args := m.Called(ctx, document)
	return args.String(0), args.Error(1)
}

// MockRefiner is a testify mock implementing loop.Refiner.
type MockRefiner struct{ mock.Mock }

func (m *MockRefiner) Refine(ctx context.Context, document, feedback string) (loop.Refinement, error) {
	args := m.Called(ctx, document, feedback)
	return args.Get(0).(loop.Refinement), args.Error(1)
}

func TestLoop_StoryScenario(t *testing.T) {
	critic := testutil.NewScriptedCritic("Add more sentences.", loop.DefaultSentinel)
	refiner := testutil.NewAppendRefiner(" The end.")

	res, err := loop.Run(context.Background(), "Once upon a time.", 5, critic, refiner)

	require.NoError(t, err)
	assert.Equal(t, "Once upon a time. The end.", res.Document)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, loop.DefaultSentinel, res.Feedback)
	assert.Equal(t, []string{"Once upon a time.", "Once upon a time. The end."}, critic.Seen())
	assert.Equal(t, 2, refiner.Calls())
}

func TestLoop_ApprovedOnFirstCall(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		critic := testutil.NewScriptedCritic().Always(loop.DefaultSentinel)
		refiner := testutil.NewAppendRefiner(" more")

		res, err := loop.Run(context.Background(), "draft", n, critic, refiner)

		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.Equal(t, 1, res.Iterations)
		assert.Equal(t, "draft", res.Document)
		assert.Equal(t, 1, critic.Calls())
	}
}

func TestLoop_NeverApprovedRunsToCap(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		critic := testutil.NewScriptedCritic().Always("needs work")
		refiner := testutil.NewAppendRefiner("+")

		res, err := loop.Run(context.Background(), "x", n, critic, refiner)

		require.NoError(t, err, "hitting the cap is not an error")
		assert.False(t, res.Converged)
		assert.Equal(t, n, res.Iterations)
		assert.Equal(t, n, critic.Calls())
		assert.Equal(t, n, refiner.Calls())
		assert.Len(t, res.Document, 1+n)
	}
}

func TestLoop_SentinelMatchIsExact(t *testing.T) {
	tests := []struct {
		name      string
		feedback  string
		converged bool
	}{
		{"exact", "No major issues found.", true},
		{"suffix", "No major issues found. But also X", false},
		{"trailing space", "No major issues found. ", false},
		{"lower case", "no major issues found.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			critic := testutil.NewScriptedCritic().Always(tt.feedback)
			refiner := loop.ExitOnSentinel(loop.DefaultSentinel, loop.Improve(
				func(_ context.Context, doc, _ string) (string, error) { return doc + "!", nil },
			))

			res, err := loop.Run(context.Background(), "doc", 3, critic, refiner)

			require.NoError(t, err)
			assert.Equal(t, tt.converged, res.Converged)
			assert.Equal(t, tt.converged, loop.IsApproved(tt.feedback, loop.DefaultSentinel))
		})
	}
}

func TestLoop_RejectsInvalidMaxIterations(t *testing.T) {
	for _, n := range []int{0, -1} {
		critic := new(MockCritic)
		refiner := new(MockRefiner)

		res, err := loop.Run(context.Background(), "initial", n, critic, refiner)

		require.Error(t, err)
		assert.ErrorIs(t, err, loop.ErrInvalidMaxIterations)
		var cfgErr *loop.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "max_iterations", cfgErr.Field)
		assert.Equal(t, "initial", res.Document)
		assert.Zero(t, res.Iterations)
		critic.AssertNotCalled(t, "Critique", mock.Anything, mock.Anything)
		refiner.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestLoop_RejectsMissingSteps(t *testing.T) {
	_, err := loop.New(nil, testutil.NewAppendRefiner("")).Run(context.Background(), "x")
	assert.ErrorIs(t, err, loop.ErrMissingStep)

	_, err = loop.New(testutil.NewScriptedCritic("a"), nil).Run(context.Background(), "x")
	assert.ErrorIs(t, err, loop.ErrMissingStep)
}

func TestLoop_CritiqueFailureKeepsLastGoodDocument(t *testing.T) {
	boom := errors.New("backend unavailable")
	critic := testutil.NewScriptedCritic("Add more sentences.").Then(testutil.CriticReply{Err: boom})
	refiner := testutil.NewAppendRefiner(" The end.")

	res, err := loop.Run(context.Background(), "Once upon a time.", 5, critic, refiner)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var stepErr *loop.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, loop.StepCritique, stepErr.Step)
	assert.Equal(t, 2, stepErr.Iteration)
	assert.Contains(t, err.Error(), "iteration 2")
	assert.Contains(t, err.Error(), "critique step failed")

	assert.Equal(t, "Once upon a time. The end.", res.Document)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, refiner.Calls(), "no step runs after the failure")
}

func TestLoop_RefineFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("malformed output")
	critic := new(MockCritic)
	refiner := new(MockRefiner)
	critic.On("Critique", mock.Anything, "v1").Return("tighten it", nil).Once()
	refiner.On("Refine", mock.Anything, "v1", "tighten it").Return(loop.Refinement{}, boom).Once()

	res, err := loop.New(critic, refiner, loop.WithName("story")).Run(ctx, "v1")

	var stepErr *loop.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, loop.StepRefine, stepErr.Step)
	assert.Equal(t, 1, stepErr.Iteration)
	assert.Equal(t, "story", stepErr.Loop)
	assert.Equal(t, "v1", res.Document)
	assert.Equal(t, "tighten it", res.Feedback)
	assert.Zero(t, res.Iterations)
	critic.AssertExpectations(t)
	refiner.AssertExpectations(t)
}

func TestLoop_CancelledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	critic := loop.CriticFunc(func(context.Context, string) (string, error) { return "more", nil })
	refiner := loop.RefinerFunc(func(_ context.Context, doc, _ string) (loop.Refinement, error) {
		cancel() // cancellation is observed at the next iteration boundary
		return loop.Refinement{Document: doc + "."}, nil
	})

	res, err := loop.Run(ctx, "a", 5, critic, refiner)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "before iteration 2")
	assert.Equal(t, "a.", res.Document)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_IntervalWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	critic := testutil.NewScriptedCritic().Always("more")
	refiner := testutil.NewAppendRefiner("+")

	start := time.Now()
	res, err := loop.New(critic, refiner, loop.WithMaxIterations(3), loop.WithInterval(time.Hour)).Run(ctx, "x")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_StepTimeoutAndRetry(t *testing.T) {
	var calls atomic.Int32
	critic := loop.CriticFunc(func(ctx context.Context, _ string) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done() // first attempt exceeds the per-step timeout
			return "", ctx.Err()
		}
		return loop.DefaultSentinel, nil
	})
	refiner := testutil.NewAppendRefiner("")

	var retries []int
	l := loop.New(critic, refiner,
		loop.WithStepTimeout(10*time.Millisecond),
		loop.WithRetry(loop.RetryPolicy{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			OnRetry:    func(_ error, attempt int, _ time.Duration) { retries = append(retries, attempt) },
		}),
	)

	res, err := l.Run(context.Background(), "doc")

	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []int{1}, retries)
}

func TestLoop_StepTimeoutWithoutRetryPropagates(t *testing.T) {
	critic := loop.CriticFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	res, err := loop.New(critic, testutil.NewAppendRefiner(""), loop.WithStepTimeout(5*time.Millisecond)).
		Run(context.Background(), "doc")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var stepErr *loop.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Iteration)
	assert.Equal(t, "doc", res.Document)
}

func TestLoop_NonRetryableErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	critic := loop.CriticFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("bad request")
	})

	_, err := loop.New(critic, testutil.NewAppendRefiner(""),
		loop.WithRetry(loop.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}),
	).Run(context.Background(), "doc")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoop_ObserverSeesLegalStateSequence(t *testing.T) {
	critic := testutil.NewScriptedCritic("more", "more", loop.DefaultSentinel)
	refiner := testutil.NewAppendRefiner(".")

	var (
		states     []loop.State
		steps      []loop.Step
		iterations []int
		ended      bool
		endResult  loop.Result
	)
	hooks := loop.Hooks{
		IterationStart: func(_ context.Context, i int, _ string) { iterations = append(iterations, i) },
		StateChange:    func(_ context.Context, _ int, s loop.State) { states = append(states, s) },
		StepComplete:   func(_ context.Context, info loop.StepInfo) { steps = append(steps, info.Step) },
		RunEnd: func(_ context.Context, res loop.Result, err error) {
			ended = true
			endResult = res
			assert.NoError(t, err)
		},
	}

	res, err := loop.New(critic, refiner, loop.WithObserver(hooks)).Run(context.Background(), "s")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, iterations)
	assert.Equal(t, []loop.State{
		loop.StateCritiquing, loop.StateRefining,
		loop.StateCritiquing, loop.StateRefining,
		loop.StateCritiquing, loop.StateRefining,
		loop.StateDone,
	}, states)
	assert.Equal(t, []loop.Step{
		loop.StepCritique, loop.StepRefine,
		loop.StepCritique, loop.StepRefine,
		loop.StepCritique, loop.StepRefine,
	}, steps)

	var prev loop.State
	for _, s := range states {
		assert.True(t, prev.CanTransition(s), "%s -> %s", prev, s)
		prev = s
	}

	assert.True(t, ended)
	assert.Equal(t, res, endResult)
}

func TestLoop_IndependentConcurrentRuns(t *testing.T) {
	l := loop.New(
		loop.CriticFunc(func(_ context.Context, doc string) (string, error) {
			if len(doc) >= 4 {
				return loop.DefaultSentinel, nil
			}
			return "longer", nil
		}),
		loop.ExitOnSentinel(loop.DefaultSentinel, loop.Improve(
			func(_ context.Context, doc, _ string) (string, error) { return doc + doc[:1], nil },
		)),
		loop.WithMaxIterations(10),
	)

	docs := []string{"a", "bb", "ccc", "dddd"}
	results := make([]loop.Result, len(docs))
	var wg sync.WaitGroup
	for i, d := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Run(context.Background(), d)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, "aaaa", results[0].Document)
	assert.Equal(t, "bbbb", results[1].Document)
	assert.Equal(t, "cccc", results[2].Document)
	assert.Equal(t, "dddd", results[3].Document)
	assert.Equal(t, 1, results[3].Iterations)
	for _, r := range results {
		assert.True(t, r.Converged)
	}
}

func TestLoop_WithDoesNotMutateOriginal(t *testing.T) {
	base := loop.New(testutil.NewScriptedCritic(), testutil.NewAppendRefiner(""), loop.WithMaxIterations(3))
	derived := base.With(loop.WithMaxIterations(7), loop.WithName("derived"))

	assert.Equal(t, 3, base.MaxIterations())
	assert.Equal(t, "RefinementLoop", base.Name())
	assert.Equal(t, 7, derived.MaxIterations())
	assert.Equal(t, "derived", derived.Name())
}

func TestRetryPolicy_DelayCappedAfterJitter(t *testing.T) {
	p := loop.RetryPolicy{
		BaseDelay:         time.Second,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
	for i := 0; i < 200; i++ {
		d := p.Delay(5)
		assert.LessOrEqual(t, d, p.MaxDelay)
		assert.GreaterOrEqual(t, d, p.MaxDelay/2)
	}

	p.Jitter = false
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(4))
}
