package tool

import "context"

// ExitLoopName is the name under which the exit tool is exposed to models.
const ExitLoopName = "exit_loop"

// ExitSignal is the result of the exit_loop tool. A refine step that
// observes it ends the refinement loop.
type ExitSignal struct {
	Reason string `json:"reason,omitempty"`
}

type exitLoopArgs struct {
	Reason string `json:"reason,omitempty" jsonschema_description:"Short note on why the document is complete"`
}

// ExitLoop returns the tool a refiner model calls when the critique says the
// document needs no further work.
func ExitLoop() *FunctionTool {
	return NewTypedTool(
		ExitLoopName,
		"Call this function ONLY when the critique indicates no further changes are needed, signaling the iterative process should end.",
		func(_ context.Context, args exitLoopArgs) (any, error) {
			return ExitSignal{Reason: args.Reason}, nil
		},
	)
}

// IsExitSignal reports whether a tool result requests loop termination.
func IsExitSignal(result any) bool {
	switch result.(type) {
	case ExitSignal, *ExitSignal:
		return true
	default:
		return false
	}
}
