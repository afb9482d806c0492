package tool

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NewTypedTool creates a FunctionTool whose arguments are decoded into T.
// The parameter schema is derived from T and argument keys are matched
// against its json tags.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error), opts ...FunctionOption) *FunctionTool {
	var zero T
	return NewFunctionToolFromStruct(name, description, zero, func(ctx context.Context, raw map[string]any) (any, error) {
		args, err := DecodeArgs[T](raw)
		if err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeBadArgs}
		}
		return fn(ctx, args)
	}, opts...)
}

// DecodeArgs decodes a generic argument map into T using json tags. Numbers
// decoded from JSON convert to integer fields when they are whole.
func DecodeArgs[T any](raw map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return out, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("failed to decode arguments: %w", err)
	}
	return out, nil
}
