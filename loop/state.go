package loop

// State is the phase a run is in.
//
// Within an iteration critique always precedes refine. A run reaches
// StateDone by exit signal, iteration cap, failure or cancellation.
type State int

const (
	// StateCritiquing means the critic is evaluating the current document.
	StateCritiquing State = iota + 1
	// StateRefining means the refiner is applying the latest feedback.
	StateRefining
	// StateDone is terminal.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCritiquing:
		return "critiquing"
	case StateRefining:
		return "refining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is legal. The zero
// State stands for a run that has not entered the cycle yet.
func (s State) CanTransition(next State) bool {
	switch s {
	case 0:
		return next == StateCritiquing || next == StateDone
	case StateCritiquing:
		return next == StateRefining || next == StateDone
	case StateRefining:
		return next == StateCritiquing || next == StateDone
	default:
		return false
	}
}

// Step names one of the two operations of an iteration.
type Step int

const (
	// StepCritique is the critic call.
	StepCritique Step = iota + 1
	// StepRefine is the refiner call.
	StepRefine
)

func (s Step) String() string {
	switch s {
	case StepCritique:
		return "critique"
	case StepRefine:
		return "refine"
	default:
		return "unknown"
	}
}
