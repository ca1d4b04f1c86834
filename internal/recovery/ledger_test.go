package recovery

import (
	"sync"
	"testing"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

func TestLedger_AppendAndQuery(t *testing.T) {
	l := NewLedger()
	l.Append(
		Record{StepIndex: 0, Attempt: 1, Outcome: plan.StatusSucceeded},
		Record{StepIndex: 1, Attempt: 1, Outcome: plan.StatusRetrying},
	)
	l.Append(Record{StepIndex: 1, Attempt: 2, Outcome: plan.StatusSucceeded})

	if l.Len() != 3 {
		t.Fatalf("Len() = %d", l.Len())
	}
	step1 := l.ForStep(1)
	if len(step1) != 2 || step1[0].Attempt != 1 || step1[1].Attempt != 2 {
		t.Errorf("ForStep(1) = %+v", step1)
	}
	if got := l.ForStep(9); got != nil {
		t.Errorf("ForStep(9) = %+v", got)
	}

	recs := l.Records()
	recs[0].Attempt = 99
	if l.Records()[0].Attempt != 1 {
		t.Error("Records() exposed internal storage")
	}
}

func TestLedger_Stats(t *testing.T) {
	sig := &executor.ErrorSignature{Message: "x"}
	l := NewLedger()
	l.Append(
		Record{StepIndex: 0, Attempt: 1, Outcome: plan.StatusSucceeded},
		Record{
			StepIndex:       1,
			Attempt:         1,
			Signature:       sig,
			Pattern:         correction.PatternCommandNotFound,
			OriginalAction:  plan.RunCommand{CommandLine: "gti"},
			CorrectedAction: plan.RunCommand{CommandLine: "git"},
			Outcome:         plan.StatusRetrying,
		},
		Record{StepIndex: 1, Attempt: 2, Outcome: plan.StatusSucceeded},
		Record{StepIndex: 2, Attempt: 1, Signature: sig, Pattern: correction.PatternUnrecognized, Outcome: plan.StatusFailedTerminal},
	)

	st := l.Stats()
	if st.Attempts != 4 || st.Failures != 2 || st.Corrected != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.ByPattern[correction.PatternCommandNotFound] != 1 || st.ByPattern[correction.PatternUnrecognized] != 1 {
		t.Errorf("ByPattern = %v", st.ByPattern)
	}
	if len(st.RecoveredSteps) != 1 || st.RecoveredSteps[0] != 1 {
		t.Errorf("RecoveredSteps = %v", st.RecoveredSteps)
	}
	if len(st.TerminalSteps) != 1 || st.TerminalSteps[0] != 2 {
		t.Errorf("TerminalSteps = %v", st.TerminalSteps)
	}
}

func TestLedger_ConcurrentAppend(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(Record{StepIndex: i, Attempt: 1})
			_ = l.Stats()
		}(i)
	}
	wg.Wait()
	if l.Len() != 50 {
		t.Errorf("Len() = %d", l.Len())
	}
}
