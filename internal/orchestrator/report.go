package orchestrator

import (
	"time"

	"github.com/Iron-Ham/autopilot/internal/recovery"
	"github.com/Iron-Ham/autopilot/internal/scheduler"
)

// Report describes a finished run. Every terminal state carries the full
// correction ledger and the snapshot the target root was left at or
// restored to.
type Report struct {
	PlanID string
	Root   string
	State  State
	Reason string

	// TotalSteps is the number of steps in the plan, dispatched or not.
	TotalSteps     int
	Waves          []scheduler.Wave
	WavesCompleted int
	// Outcomes holds the final outcome of every dispatched step, ordered by
	// wave and then step index.
	Outcomes    []recovery.Outcome
	FailedSteps []int

	Ledger      []recovery.Record
	LedgerStats recovery.Stats

	SnapshotIDs        []string
	RestoredSnapshotID string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// LastSnapshotID returns the most recent snapshot taken during the run.
func (r *Report) LastSnapshotID() string {
	if len(r.SnapshotIDs) == 0 {
		return ""
	}
	return r.SnapshotIDs[len(r.SnapshotIDs)-1]
}

// FinalSnapshotID returns the snapshot the filesystem was restored to, or
// the most recent checkpoint when no restore happened.
func (r *Report) FinalSnapshotID() string {
	if r.RestoredSnapshotID != "" {
		return r.RestoredSnapshotID
	}
	return r.LastSnapshotID()
}

// StepsSucceeded counts dispatched steps that succeeded.
func (r *Report) StepsSucceeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Progress is a point-in-time view of a run.
type Progress struct {
	PlanID     string
	State      State
	WaveIndex  int
	TotalWaves int
	StepsDone  int
	TotalSteps int
	Snapshots  int
	Elapsed    time.Duration
}

// Percent returns completed steps as a percentage of the plan.
func (p Progress) Percent() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	return float64(p.StepsDone) / float64(p.TotalSteps) * 100
}
