package loop

import "context"

// DefaultSentinel is the exact critique text that approves a document.
const DefaultSentinel = "No major issues found."

// IsApproved reports whether feedback equals sentinel exactly. Feedback that
// merely contains the sentinel does not count.
func IsApproved(feedback, sentinel string) bool {
	return feedback == sentinel
}

// ExitOnSentinel wraps a refiner so that sentinel feedback ends the loop
// with the document unchanged. Any other feedback is passed to next, whose
// own exit flag is preserved.
func ExitOnSentinel(sentinel string, next Refiner) Refiner {
	return RefinerFunc(func(ctx context.Context, document, feedback string) (Refinement, error) {
		if IsApproved(feedback, sentinel) {
			return Refinement{Document: document, Exit: true}, nil
		}
		return next.Refine(ctx, document, feedback)
	})
}

// Improve adapts a plain document transform into a Refiner that never
// signals exit on its own. Combine it with ExitOnSentinel.
func Improve(fn func(ctx context.Context, document, feedback string) (string, error)) Refiner {
	return RefinerFunc(func(ctx context.Context, document, feedback string) (Refinement, error) {
		doc, err := fn(ctx, document, feedback)
		if err != nil {
			return Refinement{}, err
		}
		return Refinement{Document: doc}, nil
	})
}
