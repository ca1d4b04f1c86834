package orchestrator

// State is the lifecycle state of a plan run.
type State string

const (
	StatePlanning             State = "planning"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StatePaused               State = "paused"
	StateCompleted            State = "completed"
	StateFailedAborted        State = "failed_aborted"
	StateRolledBack           State = "rolled_back"
)

// StateIdle is reported by an orchestrator that has no run in progress and
// has not finished one yet.
const StateIdle State = "idle"

var transitions = map[State][]State{
	StateIdle:                 {StatePlanning},
	StatePlanning:             {StateAwaitingConfirmation, StateFailedAborted},
	StateAwaitingConfirmation: {StateExecuting, StateFailedAborted},
	StateExecuting:            {StatePaused, StateCompleted, StateFailedAborted, StateRolledBack},
	StatePaused:               {StateExecuting, StateFailedAborted, StateRolledBack},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Terminal states may only be left by starting a new plan.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return next == StatePlanning
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition occurs for this plan.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailedAborted, StateRolledBack:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
