// Package recovery wraps a single step's execution in a bounded
// retry-with-correction loop and keeps the audit ledger of every attempt.
//
// A failed attempt is classified by the correction strategy. Failures that
// are not recognized, or whose pattern is not trusted enough to act on, end
// the step immediately. Otherwise the step is re-executed with the
// corrected action (or the same action when no rewrite applies) until it
// succeeds or the attempt budget is spent.
package recovery

import (
	"context"
	"time"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// DefaultMaxAttempts is the attempt budget when none is configured.
const DefaultMaxAttempts = 3

// StepExecutor runs one action attempt.
type StepExecutor interface {
	Execute(ctx context.Context, t executor.Task) executor.StepResult
}

// Corrector proposes a revised action for a failed attempt.
type Corrector interface {
	Correct(a plan.Action, sig executor.ErrorSignature) (correction.Correction, bool)
	Threshold() float64
}

// Record is the immutable audit entry for one attempt.
type Record struct {
	StepIndex int
	Attempt   int
	// OriginalAction is the action that was executed in this attempt.
	OriginalAction plan.Action
	// CorrectedAction is what the next attempt will run. Nil when the
	// attempt succeeded or no further attempt is made.
	CorrectedAction plan.Action
	Signature       *executor.ErrorSignature
	Pattern         correction.Pattern
	Confidence      float64
	Note            string
	Outcome         plan.StepStatus
	Duration        time.Duration
	At              time.Time
}

// Corrected reports whether this attempt produced a rewritten action.
func (r Record) Corrected() bool {
	return r.CorrectedAction != nil && !plan.Equal(r.CorrectedAction, r.OriginalAction)
}

// Outcome is the final result of running a step with recovery.
type Outcome struct {
	StepIndex int
	Result    executor.StepResult
	Records   []Record
	Attempts  int
	// FinalAction is the action executed by the last attempt.
	FinalAction plan.Action
	Status      plan.StepStatus
}

// Succeeded reports whether the step ended in success.
func (o Outcome) Succeeded() bool {
	return o.Status == plan.StatusSucceeded
}

// Loop runs steps with bounded recovery. It holds no per-step state and is
// safe to use from many goroutines at once.
type Loop struct {
	exec        StepExecutor
	corrector   Corrector
	maxAttempts int
	logger      *logging.Logger
	now         func() time.Time
}

// NewLoop creates a Loop. maxAttempts below one selects DefaultMaxAttempts.
func NewLoop(exec StepExecutor, corrector Corrector, maxAttempts int, logger *logging.Logger) *Loop {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Loop{
		exec:        exec,
		corrector:   corrector,
		maxAttempts: maxAttempts,
		logger:      logging.OrNop(logger).WithComponent("recovery"),
		now:         time.Now,
	}
}

// MaxAttempts returns the per-step attempt budget.
func (l *Loop) MaxAttempts() int {
	return l.maxAttempts
}

// Run executes step under root until it succeeds, the failure is not
// correctable, or the attempt budget is exhausted. One Record is produced
// per attempt. Cancelling ctx stops further attempts but never interrupts
// the attempt in flight beyond what the executor itself enforces.
func (l *Loop) Run(ctx context.Context, root string, step plan.Step) Outcome {
	logger := l.logger.WithStep(step.Index).With("action", step.Action.Kind())
	out := Outcome{StepIndex: step.Index}
	action := step.Action

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		started := l.now()
		res := l.exec.Execute(ctx, executor.Task{StepIndex: step.Index, Root: root, Action: action})

		out.Attempts = attempt
		out.Result = res
		out.FinalAction = action

		rec := Record{
			StepIndex:      step.Index,
			Attempt:        attempt,
			OriginalAction: action,
			Duration:       res.Duration,
			At:             started,
		}

		if res.Success {
			rec.Outcome = plan.StatusSucceeded
			out.Records = append(out.Records, rec)
			out.Status = plan.StatusSucceeded
			if attempt > 1 {
				logger.Info("step recovered", "attempts", attempt)
			}
			return out
		}

		sig := failureSignature(res)
		rec.Signature = &sig

		fix, ok := l.corrector.Correct(action, sig)
		rec.Pattern = fix.Pattern
		rec.Confidence = fix.Confidence
		rec.Note = fix.Note

		retryable := fix.Pattern.Recognized() && fix.Confidence > l.corrector.Threshold()
		last := attempt == l.maxAttempts
		if !retryable || last || ctx.Err() != nil {
			rec.Outcome = plan.StatusFailedTerminal
			out.Records = append(out.Records, rec)
			out.Status = plan.StatusFailedTerminal
			logger.Warn("step failed terminally",
				"attempts", attempt,
				"pattern", fix.Pattern.String(),
				"error", sig.String())
			return out
		}

		next := action
		if ok {
			next = fix.Action
		}
		rec.CorrectedAction = next
		rec.Outcome = plan.StatusRetrying
		out.Records = append(out.Records, rec)

		logger.Info("retrying step",
			"attempt", attempt,
			"pattern", fix.Pattern.String(),
			"confidence", fix.Confidence,
			"corrected", ok,
			"error", sig.String())
		action = next
	}

	// unreachable while maxAttempts >= 1
	out.Status = plan.StatusFailedTerminal
	return out
}

func failureSignature(res executor.StepResult) executor.ErrorSignature {
	if res.Error != nil {
		return *res.Error
	}
	return executor.ErrorSignature{Message: "step failed without a signature", ExitCode: executor.ExitCodeNone}
}
