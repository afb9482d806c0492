// Package steps provides model backed implementations of the refinement
// steps: a Writer for the first draft, a ModelCritic and a ModelRefiner that
// plug into loop.Loop.
//
// Instructions are Go templates rendered over the step inputs. The available
// keys are initial_topic, current_document, criticism and completion_phrase.
package steps
