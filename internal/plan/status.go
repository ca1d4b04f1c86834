package plan

// StepStatus is the execution status of a step. Only the orchestrator
// transitions it.
type StepStatus string

const (
	StatusPending        StepStatus = "pending"
	StatusRunning        StepStatus = "running"
	StatusSucceeded      StepStatus = "succeeded"
	StatusFailed         StepStatus = "failed"
	StatusRetrying       StepStatus = "retrying"
	StatusFailedTerminal StepStatus = "failed_terminal"
)

var stepTransitions = map[StepStatus][]StepStatus{
	StatusPending:  {StatusRunning},
	StatusRunning:  {StatusSucceeded, StatusFailed},
	StatusFailed:   {StatusRetrying, StatusFailedTerminal},
	StatusRetrying: {StatusRunning},
}

// CanTransition reports whether a step may move from one status to another.
func (s StepStatus) CanTransition(to StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s StepStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailedTerminal
}
