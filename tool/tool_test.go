package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refinery/core"
)

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
}

func TestFunctionTool_Success(t *testing.T) {
	out, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "calculate_sum", toolErr.Tool)

	var vErr *ValidationError
	require.ErrorAs(t, toolErr.Details.(error), &vErr)
	assert.Equal(t, "b", vErr.Field)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"plain error is wrapped", errors.New("boom"), CodeExecution},
		{"tool error is forwarded", NewToolError("custom", "quota", "QUOTA"), "QUOTA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := NewFunctionTool("failing", "", nil, func(context.Context, map[string]any) (any, error) {
				return nil, tt.err
			})
			_, err := ft.Call(context.Background(), nil)
			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, tt.wantCode, toolErr.Code)
		})
	}
}

func TestToolError_Error(t *testing.T) {
	assert.Equal(t, "tool error [X] in t: m", NewToolError("t", "m", "X").Error())
	assert.Equal(t, "tool error in t: m", (&ToolError{Tool: "t", Message: "m"}).Error())
}

func TestExitLoop(t *testing.T) {
	exit := ExitLoop()
	assert.Equal(t, ExitLoopName, exit.Name())
	assert.Contains(t, exit.Parameters()["properties"], "reason")
	assert.Nil(t, exit.Parameters()["required"])

	out, err := exit.Call(context.Background(), map[string]any{"reason": "done"})
	require.NoError(t, err)
	assert.True(t, IsExitSignal(out))
	assert.Equal(t, ExitSignal{Reason: "done"}, out)

	out, err = exit.Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, IsExitSignal(out))

	assert.False(t, IsExitSignal("done"))
	assert.True(t, IsExitSignal(&ExitSignal{}))
}

func TestSet(t *testing.T) {
	s := NewSet(sumTool(), ExitLoop(), nil)
	assert.Equal(t, 2, s.Len())

	defs := s.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "calculate_sum", defs[0].Function.Name)
	assert.Equal(t, ExitLoopName, defs[1].Function.Name)

	var empty *Set
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Definitions())
	assert.Nil(t, Definitions(nil))
}

func TestSet_ReplacesDuplicateNames(t *testing.T) {
	replacement := NewFunctionTool("calculate_sum", "replaced", nil, func(context.Context, map[string]any) (any, error) {
		return "replaced", nil
	})
	s := NewSet(sumTool(), replacement)
	assert.Equal(t, 1, s.Len())
	got, ok := s.Lookup("calculate_sum")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description())
}

func TestSet_Execute(t *testing.T) {
	s := NewSet(sumTool(), ExitLoop())
	ctx := context.Background()

	out, resp, err := s.Execute(ctx, core.FunctionCall{ID: "c1", Name: "calculate_sum", Arguments: `{"a":1,"b":2}`})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, 3.0, resp.Response)

	out, _, err = s.Execute(ctx, core.FunctionCall{ID: "c2", Name: ExitLoopName})
	require.NoError(t, err)
	assert.True(t, IsExitSignal(out))

	_, resp, err = s.Execute(ctx, core.FunctionCall{Name: "missing"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeUnknownTool, toolErr.Code)
	assert.NotEmpty(t, resp.Error)

	_, _, err = s.Execute(ctx, core.FunctionCall{Name: "calculate_sum", Arguments: "{not json"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeBadArgs, toolErr.Code)
}

func TestSet_ExecuteRecoversPanics(t *testing.T) {
	s := NewSet(NewFunctionTool("explode", "", nil, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}))
	_, resp, err := s.Execute(context.Background(), core.FunctionCall{Name: "explode"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "kaboom")
	assert.Contains(t, resp.Error, "kaboom")
}

func TestExecutor_PreservesOrder(t *testing.T) {
	slow := NewFunctionTool("slow", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
		}
		return "slow", nil
	})
	fast := NewFunctionTool("fast", "", nil, func(context.Context, map[string]any) (any, error) {
		return "fast", nil
	})

	e := NewExecutor(NewSet(slow, fast))
	results := e.Run(context.Background(), []core.FunctionCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
		{ID: "3", Name: "missing"},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].Value)
	assert.Equal(t, "1", results[0].Response.ID)
	assert.Equal(t, "fast", results[1].Value)
	assert.Error(t, results[2].Err)
	assert.Equal(t, "3", results[2].Response.ID)
	assert.NotEmpty(t, results[2].Response.Error)
}

func TestExecutor_RespectsParallelLimit(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	track := NewFunctionTool("track", "", nil, func(context.Context, map[string]any) (any, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})

	calls := make([]core.FunctionCall, 6)
	for i := range calls {
		calls[i] = core.FunctionCall{ID: fmt.Sprint(i), Name: "track"}
	}

	e := NewExecutor(NewSet(track), func(o *ExecutorOptions) { o.MaxParallel = 2 })
	results := e.Run(context.Background(), calls)

	require.Len(t, results, 6)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, peak, 2)
}

func TestExecutor_CancelledContext(t *testing.T) {
	called := false
	fn := NewFunctionTool("fn", "", nil, func(context.Context, map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(NewSet(fn), func(o *ExecutorOptions) { o.MaxParallel = 1 })
	results := e.Run(ctx, []core.FunctionCall{{ID: "a", Name: "fn"}, {ID: "b", Name: "fn"}})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.NotEmpty(t, r.Response.Error)
	}
	assert.False(t, called)
}

type repeatArgs struct {
	Word  string `json:"word"`
	Times int    `json:"times,omitempty"`
}

func TestTypedTool(t *testing.T) {
	repeat := NewTypedTool("repeat", "Repeat a word", func(_ context.Context, args repeatArgs) (any, error) {
		if args.Times == 0 {
			args.Times = 1
		}
		out := ""
		for i := 0; i < args.Times; i++ {
			out += args.Word
		}
		return out, nil
	})

	assert.Equal(t, []any{"word"}, repeat.Parameters()["required"])

	out, err := repeat.Call(context.Background(), map[string]any{"word": "ab", "times": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "ababab", out)

	_, err = repeat.Call(context.Background(), map[string]any{"times": 2.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestTypedTool_AnonymousStruct(t *testing.T) {
	sum := NewTypedTool("sum", "Add two numbers", func(_ context.Context, args struct {
		A int `json:"a"`
		B int `json:"b"`
	}) (any, error) {
		return args.A + args.B, nil
	})

	props := sum.Parameters()["properties"].(map[string]any)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Equal(t, []any{"a", "b"}, sum.Parameters()["required"])

	out, err := sum.Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}

func TestTypedTool_NonStructArgs(t *testing.T) {
	echo := NewTypedTool("echo", "Echo the arguments", func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	assert.Equal(t, "object", echo.Parameters()["type"])
	assert.Empty(t, echo.Parameters()["properties"])

	out, err := echo.Call(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	word := NewTypedTool("word", "Takes a bare string", func(_ context.Context, args string) (any, error) {
		return args, nil
	})
	assert.Equal(t, "object", word.Parameters()["type"])

	_, err = word.Call(context.Background(), map[string]any{"text": "hi"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeBadArgs, toolErr.Code)
}

func TestDecodeArgs(t *testing.T) {
	args, err := DecodeArgs[repeatArgs](map[string]any{"word": "x", "times": "2"})
	require.NoError(t, err)
	assert.Equal(t, repeatArgs{Word: "x", Times: 2}, args)

	_, err = DecodeArgs[repeatArgs](map[string]any{"times": []any{"bad"}})
	assert.Error(t, err)
}
