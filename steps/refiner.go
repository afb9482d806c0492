package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/model"
	"github.com/hupe1980/refinery/tool"
)

// ModelRefiner applies critique to a document with a model.
//
// Feedback equal to the sentinel ends the loop without a model call. The
// model may also end the loop by calling the exit_loop tool, or any tool
// returning tool.ExitSignal; the document is then returned unchanged. Calls
// to other registered tools are executed and their results fed back,
// bounded by WithMaxToolRounds.
type ModelRefiner struct {
	base
	toolset  *tool.Set
	executor *tool.Executor
}

var _ loop.Refiner = (*ModelRefiner)(nil)

// NewRefiner creates a ModelRefiner backed by m.
func NewRefiner(m model.Model, opts ...Option) *ModelRefiner {
	r := &ModelRefiner{base: newBase("Refiner", m, DefaultRefinerInstruction, refinerDescription, opts)}
	r.toolset = tool.NewSet(append([]tool.Tool{tool.ExitLoop()}, r.tools...)...)
	r.executor = tool.NewExecutor(r.toolset, func(o *tool.ExecutorOptions) {
		o.MaxParallel = r.toolParallelism
		o.Logger = r.logger
	})
	return r
}

// Refine implements loop.Refiner.
func (r *ModelRefiner) Refine(ctx context.Context, document, feedback string) (loop.Refinement, error) {
	if loop.IsApproved(feedback, r.sentinel) {
		r.logger.Debug("Critique approved document", "sentinel", r.sentinel)
		return loop.Refinement{Document: document, Exit: true}, nil
	}

	prompt, err := r.prompt(map[string]any{
		KeyCurrentDocument: document,
		KeyCriticism:       feedback,
	})
	if err != nil {
		return loop.Refinement{}, err
	}

	contents := []core.Content{core.NewTextContent(core.RoleUser, prompt)}
	for round := 0; ; round++ {
		resp, err := r.call(ctx, contents, r.toolset)
		if err != nil {
			return loop.Refinement{}, err
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			return r.textRefinement(resp)
		}
		if round >= r.maxToolRounds {
			return loop.Refinement{}, fmt.Errorf("%s: exceeded %d tool rounds", r.name, r.maxToolRounds)
		}

		for _, call := range calls {
			if call.Name == tool.ExitLoopName {
				r.logger.Debug("Model requested loop exit", "tool", call.Name)
				return loop.Refinement{Document: document, Exit: true}, nil
			}
		}

		results := make([]core.Part, 0, len(calls))
		for _, res := range r.executor.Run(ctx, calls) {
			if res.Err != nil {
				r.logger.Warn("Tool call failed", "tool", res.Call.Name, "error", res.Err.Error())
			}
			if tool.IsExitSignal(res.Value) {
				r.logger.Debug("Tool requested loop exit", "tool", res.Call.Name)
				return loop.Refinement{Document: document, Exit: true}, nil
			}
			results = append(results, core.FunctionResponsePart{FunctionResponse: res.Response})
		}
		contents = append(contents, resp.Content, core.Content{Role: core.RoleTool, Parts: results})
	}
}

func (r *ModelRefiner) textRefinement(resp model.Response) (loop.Refinement, error) {
	text := strings.TrimSpace(resp.Content.Text())
	if text == "" {
		return loop.Refinement{}, fmt.Errorf("%s: %w", r.name, ErrEmptyOutput)
	}
	return loop.Refinement{Document: text}, nil
}
