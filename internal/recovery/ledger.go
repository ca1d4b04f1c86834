package recovery

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// Ledger is the append-only audit trail of attempts for one plan run.
// Records are never modified after they are appended.
type Ledger struct {
	mu      sync.RWMutex
	records []Record
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds records in order.
func (l *Ledger) Append(records ...Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, records...)
}

// Records returns a copy of every record in append order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// ForStep returns the records of one step in attempt order.
func (l *Ledger) ForStep(stepIndex int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if r.StepIndex == stepIndex {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Stats summarizes correction activity in a ledger.
type Stats struct {
	Attempts       int                        `json:"attempts"`
	Failures       int                        `json:"failures"`
	ByPattern      map[correction.Pattern]int `json:"by_pattern"`
	Corrected      int                        `json:"corrected"`
	RecoveredSteps []int                      `json:"recovered_steps"`
	TerminalSteps  []int                      `json:"terminal_steps"`
}

// Stats computes totals over the ledger. A step counts as recovered when
// it succeeded on a later attempt than its first.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{ByPattern: make(map[correction.Pattern]int)}
	for _, r := range l.records {
		st.Attempts++
		if r.Signature != nil {
			st.Failures++
			st.ByPattern[r.Pattern]++
		}
		if r.Corrected() {
			st.Corrected++
		}
		switch r.Outcome {
		case plan.StatusSucceeded:
			if r.Attempt > 1 {
				st.RecoveredSteps = append(st.RecoveredSteps, r.StepIndex)
			}
		case plan.StatusFailedTerminal:
			st.TerminalSteps = append(st.TerminalSteps, r.StepIndex)
		}
	}
	sort.Ints(st.RecoveredSteps)
	sort.Ints(st.TerminalSteps)
	return st
}
