package loop

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMaxIterations is returned when the iteration cap is below 1.
	ErrInvalidMaxIterations = errors.New("max iterations must be at least 1")
	// ErrMissingStep is returned when the critic or refiner is nil.
	ErrMissingStep = errors.New("step implementation is required")
)

// ConfigError reports an invalid loop configuration. It is returned before
// any step executes.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid loop configuration: %s=%v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid loop configuration: %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// StepError identifies the step and iteration whose call failed.
type StepError struct {
	Loop      string
	Step      Step
	Iteration int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("loop %s: iteration %d: %s step failed: %v", e.Loop, e.Iteration, e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error { return e.Err }
