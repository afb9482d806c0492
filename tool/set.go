package tool

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/model"
)

// Set is an ordered, name indexed collection of tools.
type Set struct {
	order []Tool
	index map[string]Tool
}

// NewSet builds a Set. Later tools replace earlier ones with the same name.
func NewSet(tools ...Tool) *Set {
	s := &Set{index: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, dup := s.index[t.Name()]; !dup {
			s.order = append(s.order, t)
		} else {
			for i, existing := range s.order {
				if existing.Name() == t.Name() {
					s.order[i] = t
				}
			}
		}
		s.index[t.Name()] = t
	}
	return s
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Lookup returns the tool registered under name.
func (s *Set) Lookup(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.index[name]
	return t, ok
}

// Definitions returns model declarations for every tool in order.
func (s *Set) Definitions() []model.ToolDefinition {
	if s == nil {
		return nil
	}
	return Definitions(s.order)
}

// Execute decodes the call arguments, runs the matching tool and returns the
// raw result alongside a response suitable for feeding back to a model.
func (s *Set) Execute(ctx context.Context, call core.FunctionCall) (any, core.FunctionResponse, error) {
	resp := core.FunctionResponse{ID: call.ID, Name: call.Name}

	t, ok := s.Lookup(call.Name)
	if !ok {
		err := NewToolError(call.Name, "tool not found", CodeUnknownTool)
		resp.Error = err.Error()
		return nil, resp, err
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			tErr := &ToolError{Tool: call.Name, Message: fmt.Sprintf("decode arguments: %v", err), Code: CodeBadArgs}
			resp.Error = tErr.Error()
			return nil, resp, tErr
		}
	}

	result, err := safeCall(ctx, t, args)
	if err != nil {
		resp.Error = err.Error()
		return nil, resp, err
	}
	resp.Response = result
	return result, resp, nil
}

func safeCall(ctx context.Context, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ToolError{Tool: t.Name(), Message: fmt.Sprintf("panic: %v", r), Code: CodeExecution}
		}
	}()
	return t.Call(ctx, args)
}
