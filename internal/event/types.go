package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "wave.started", "plan.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWaveStarted         = "wave.started"
	TypeWaveCompleted       = "wave.completed"
	TypeStepCompleted       = "step.completed"
	TypeSnapshotCreated     = "snapshot.created"
	TypeSnapshotRestored    = "snapshot.restored"
	TypeCorrectionAttempted = "correction.attempted"
	TypeStateChanged        = "state.changed"
	TypePlanCompleted       = "plan.completed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Wave Events
// -----------------------------------------------------------------------------

// WaveStartedEvent is emitted before a wave's steps are dispatched.
type WaveStartedEvent struct {
	baseEvent
	WaveIndex   int
	StepCount   int
	Destructive bool
}

// NewWaveStartedEvent creates a WaveStartedEvent.
func NewWaveStartedEvent(waveIndex, stepCount int, destructive bool) WaveStartedEvent {
	return WaveStartedEvent{
		baseEvent:   newBaseEvent(TypeWaveStarted),
		WaveIndex:   waveIndex,
		StepCount:   stepCount,
		Destructive: destructive,
	}
}

// WaveCompletedEvent is emitted after every step of a wave has returned.
type WaveCompletedEvent struct {
	baseEvent
	WaveIndex int
	Failed    []int // step indices that reached terminal failure
	Duration  time.Duration
}

// NewWaveCompletedEvent creates a WaveCompletedEvent.
func NewWaveCompletedEvent(waveIndex int, failed []int, d time.Duration) WaveCompletedEvent {
	return WaveCompletedEvent{
		baseEvent: newBaseEvent(TypeWaveCompleted),
		WaveIndex: waveIndex,
		Failed:    failed,
		Duration:  d,
	}
}

// StepCompletedEvent is emitted once per step with its final outcome.
type StepCompletedEvent struct {
	baseEvent
	StepIndex int
	Success   bool
	Attempts  int
	Duration  time.Duration
}

// NewStepCompletedEvent creates a StepCompletedEvent.
func NewStepCompletedEvent(stepIndex int, success bool, attempts int, d time.Duration) StepCompletedEvent {
	return StepCompletedEvent{
		baseEvent: newBaseEvent(TypeStepCompleted),
		StepIndex: stepIndex,
		Success:   success,
		Attempts:  attempts,
		Duration:  d,
	}
}

// -----------------------------------------------------------------------------
// Snapshot Events
// -----------------------------------------------------------------------------

// SnapshotCreatedEvent is emitted when a checkpoint has been written.
type SnapshotCreatedEvent struct {
	baseEvent
	SnapshotID string
	WaveIndex  int
	FileCount  int
}

// NewSnapshotCreatedEvent creates a SnapshotCreatedEvent.
func NewSnapshotCreatedEvent(id string, waveIndex, files int) SnapshotCreatedEvent {
	return SnapshotCreatedEvent{
		baseEvent:  newBaseEvent(TypeSnapshotCreated),
		SnapshotID: id,
		WaveIndex:  waveIndex,
		FileCount:  files,
	}
}

// SnapshotRestoredEvent is emitted after the target root was rolled back.
type SnapshotRestoredEvent struct {
	baseEvent
	SnapshotID string
}

// NewSnapshotRestoredEvent creates a SnapshotRestoredEvent.
func NewSnapshotRestoredEvent(id string) SnapshotRestoredEvent {
	return SnapshotRestoredEvent{
		baseEvent:  newBaseEvent(TypeSnapshotRestored),
		SnapshotID: id,
	}
}

// -----------------------------------------------------------------------------
// Recovery Events
// -----------------------------------------------------------------------------

// CorrectionAttemptedEvent reports a failed attempt and the correction
// decision taken for it.
type CorrectionAttemptedEvent struct {
	baseEvent
	StepIndex int
	Attempt   int
	Pattern   string
	Corrected bool   // a revised action was produced for the next attempt
	Outcome   string // "retrying" or "failed_terminal"
}

// NewCorrectionAttemptedEvent creates a CorrectionAttemptedEvent.
func NewCorrectionAttemptedEvent(stepIndex, attempt int, pattern string, corrected bool, outcome string) CorrectionAttemptedEvent {
	return CorrectionAttemptedEvent{
		baseEvent: newBaseEvent(TypeCorrectionAttempted),
		StepIndex: stepIndex,
		Attempt:   attempt,
		Pattern:   pattern,
		Corrected: corrected,
		Outcome:   outcome,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted on every orchestrator lifecycle transition.
type StateChangedEvent struct {
	baseEvent
	From string
	To   string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(from, to string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		From:      from,
		To:        to,
	}
}

// PlanCompletedEvent is emitted exactly once when a run reaches a terminal state.
type PlanCompletedEvent struct {
	baseEvent
	PlanID     string
	State      string
	Reason     string
	SnapshotID string // snapshot the filesystem was left at or restored to
}

// NewPlanCompletedEvent creates a PlanCompletedEvent.
func NewPlanCompletedEvent(planID, state, reason, snapshotID string) PlanCompletedEvent {
	return PlanCompletedEvent{
		baseEvent:  newBaseEvent(TypePlanCompleted),
		PlanID:     planID,
		State:      state,
		Reason:     reason,
		SnapshotID: snapshotID,
	}
}
