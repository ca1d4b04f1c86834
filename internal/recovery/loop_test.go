package recovery

import (
	"context"
	"sync"
	"testing"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// scriptedExecutor returns results from a script, repeating the last one.
type scriptedExecutor struct {
	mu      sync.Mutex
	script  []func(executor.Task) executor.StepResult
	actions []plan.Action
}

func (s *scriptedExecutor) Execute(_ context.Context, t executor.Task) executor.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.actions)
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.actions = append(s.actions, t.Action)
	res := s.script[i](t)
	res.StepIndex = t.StepIndex
	return res
}

func (s *scriptedExecutor) calls() []plan.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]plan.Action(nil), s.actions...)
}

func fail(msg string, exit int) func(executor.Task) executor.StepResult {
	return func(executor.Task) executor.StepResult {
		return executor.StepResult{Error: &executor.ErrorSignature{
			Category: errors.CategoryCommand,
			Message:  msg,
			ExitCode: exit,
		}}
	}
}

func succeed(executor.Task) executor.StepResult {
	return executor.StepResult{Success: true}
}

func newLoop(exec StepExecutor, maxAttempts int) *Loop {
	return NewLoop(exec, correction.NewStrategy(correction.DefaultOptions()), maxAttempts, nil)
}

func TestLoop_AlwaysFailingRecognizedPattern(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{
			fail("touch: cannot touch 'x': Permission denied", 1),
		}}
		loop := newLoop(exec, maxAttempts)

		out := loop.Run(context.Background(), "/root", plan.Step{Index: 2, Action: plan.RunCommand{CommandLine: "touch x"}})

		if got := len(exec.calls()); got != maxAttempts {
			t.Errorf("maxAttempts=%d: executions = %d", maxAttempts, got)
		}
		if out.Result.Success || out.Succeeded() {
			t.Errorf("maxAttempts=%d: expected failure", maxAttempts)
		}
		if len(out.Records) != maxAttempts || out.Attempts != maxAttempts {
			t.Errorf("maxAttempts=%d: records = %d, attempts = %d", maxAttempts, len(out.Records), out.Attempts)
		}
		if out.Status != plan.StatusFailedTerminal {
			t.Errorf("Status = %s", out.Status)
		}
		for i, r := range out.Records {
			if r.Attempt != i+1 || r.StepIndex != 2 {
				t.Errorf("record %d = %+v", i, r)
			}
			if r.Pattern != correction.PatternPermissionDenied {
				t.Errorf("record %d pattern = %s", i, r.Pattern)
			}
		}
		if last := out.Records[len(out.Records)-1]; last.Outcome != plan.StatusFailedTerminal || last.CorrectedAction != nil {
			t.Errorf("last record = %+v", last)
		}
	}
}

func TestLoop_CorrectedActionSucceeds(t *testing.T) {
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{
		fail("sh: 1: gti: not found", 127),
		succeed,
	}}
	loop := newLoop(exec, 3)

	out := loop.Run(context.Background(), "/root", plan.Step{Index: 0, Action: plan.RunCommand{CommandLine: "gti status"}})

	calls := exec.calls()
	if len(calls) != 2 {
		t.Fatalf("executions = %d, want 2", len(calls))
	}
	if !out.Succeeded() || !out.Result.Success {
		t.Fatal("expected success")
	}
	want := plan.RunCommand{CommandLine: "git status"}
	if !plan.Equal(calls[1], want) || !plan.Equal(out.FinalAction, want) {
		t.Errorf("second attempt ran %v", calls[1])
	}

	first := out.Records[0]
	if first.Outcome != plan.StatusRetrying || !first.Corrected() || !plan.Equal(first.CorrectedAction, want) {
		t.Errorf("first record = %+v", first)
	}
	if out.Records[1].Outcome != plan.StatusSucceeded {
		t.Errorf("second record = %+v", out.Records[1])
	}
}

func TestLoop_UnrecognizedFailureIsTerminal(t *testing.T) {
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{fail("exit status 1", 1)}}
	loop := newLoop(exec, 3)

	out := loop.Run(context.Background(), "/root", plan.Step{Action: plan.RunCommand{CommandLine: "exit 1"}})

	if len(exec.calls()) != 1 || out.Attempts != 1 {
		t.Fatalf("executions = %d, want 1", len(exec.calls()))
	}
	if out.Status != plan.StatusFailedTerminal || len(out.Records) != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Records[0].Pattern != correction.PatternUnrecognized {
		t.Errorf("pattern = %s", out.Records[0].Pattern)
	}
}

func TestLoop_LowConfidencePatternIsTerminal(t *testing.T) {
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{
		fail("sh: 1: Syntax error: \"(\" unexpected", 2),
	}}
	loop := newLoop(exec, 3)

	out := loop.Run(context.Background(), "/root", plan.Step{Action: plan.RunCommand{CommandLine: "echo ("}})

	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
	if out.Records[0].Pattern != correction.PatternSyntaxError {
		t.Errorf("pattern = %s", out.Records[0].Pattern)
	}
}

func TestLoop_FirstAttemptSuccess(t *testing.T) {
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{succeed}}
	out := newLoop(exec, 0).Run(context.Background(), "/root", plan.Step{Action: plan.CreateFile{Path: "x"}})

	if !out.Succeeded() || out.Attempts != 1 || len(out.Records) != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Records[0].Signature != nil {
		t.Error("successful attempt carries a signature")
	}
}

func TestLoop_CanceledContextStopsRetries(t *testing.T) {
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{
		fail("Permission denied", 1),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newLoop(exec, 3).Run(ctx, "/root", plan.Step{Action: plan.RunCommand{CommandLine: "touch x"}})
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
}

func TestLoop_TaskCarriesRootAndIndex(t *testing.T) {
	var got executor.Task
	exec := &scriptedExecutor{script: []func(executor.Task) executor.StepResult{
		func(tk executor.Task) executor.StepResult {
			got = tk
			return executor.StepResult{Success: true}
		},
	}}
	newLoop(exec, 1).Run(context.Background(), "/plan/root", plan.Step{Index: 7, Action: plan.GitCommit{Message: "m"}})

	if got.Root != "/plan/root" || got.StepIndex != 7 {
		t.Errorf("task = %+v", got)
	}
}

func TestDefaultMaxAttempts(t *testing.T) {
	if l := newLoop(&scriptedExecutor{}, -1); l.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("MaxAttempts() = %d", l.MaxAttempts())
	}
}
