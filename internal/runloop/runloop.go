// Package runloop dispatches the steps of one wave onto a bounded pool of
// workers and joins their outcomes.
//
// Each worker runs exactly one step at a time through a StepRunner and
// shares nothing with other workers: results travel back only as returned
// values. A wave is never partially reported. RunWave returns once every
// dispatched step has produced an outcome.
package runloop

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/recovery"
)

// StepRunner runs one step to a final outcome.
type StepRunner interface {
	Run(ctx context.Context, root string, step plan.Step) recovery.Outcome
}

// Config sizes the pool and the global budget.
type Config struct {
	// Workers is the pool size. Zero uses GOMAXPROCS.
	Workers     int
	MaxSteps    int
	MaxDuration time.Duration
}

// Runner executes waves.
type Runner struct {
	steps   StepRunner
	workers int
	budget  *Budget
	logger  *logging.Logger
}

// New creates a Runner.
func New(cfg Config, steps StepRunner, logger *logging.Logger) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		steps:   steps,
		workers: workers,
		budget:  NewBudget(cfg.MaxSteps, cfg.MaxDuration),
		logger:  logging.OrNop(logger).WithComponent("runloop"),
	}
}

// Workers returns the pool size.
func (r *Runner) Workers() int {
	return r.workers
}

// Budget returns the run's global budget.
func (r *Runner) Budget() *Budget {
	return r.budget
}

// RunWave runs steps concurrently and returns their outcomes ordered by
// step index. Nothing is dispatched if ctx is already done or the budget
// cannot cover the wave. Cancelling ctx after dispatch reaches every
// in-flight step, and RunWave still waits for each of them to report.
// Callers that want a wave to drain keep ctx alive.
func (r *Runner) RunWave(ctx context.Context, root string, steps []plan.Step) ([]recovery.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancellationError("wave not dispatched")
	}
	if len(steps) == 0 {
		return nil, nil
	}
	if err := r.budget.Reserve(len(steps)); err != nil {
		r.logger.Warn("budget exhausted", "steps", len(steps), "error", err.Error())
		return nil, err
	}

	p := pool.NewWithResults[recovery.Outcome]().WithMaxGoroutines(r.workers)
	for _, step := range steps {
		p.Go(func() recovery.Outcome {
			return r.runIsolated(ctx, root, step)
		})
	}
	outcomes := p.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].StepIndex < outcomes[j].StepIndex
	})
	return outcomes, nil
}

// runIsolated turns a panicking step into a terminal failure so one bad
// worker cannot take the wave down with it.
func (r *Runner) runIsolated(ctx context.Context, root string, step plan.Step) recovery.Outcome {
	var out recovery.Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = r.steps.Run(ctx, root, step)
	})
	if rec := pc.Recovered(); rec != nil {
		r.logger.WithStep(step.Index).Error("step panicked", "panic", fmt.Sprint(rec.Value))
		sig := executor.ErrorSignature{
			Category: errors.CategoryIO,
			Message:  "step panicked: " + fmt.Sprint(rec.Value),
			ExitCode: executor.ExitCodeNone,
		}
		out = recovery.Outcome{
			StepIndex:   step.Index,
			Result:      executor.StepResult{StepIndex: step.Index, Error: &sig},
			Attempts:    1,
			FinalAction: step.Action,
			Status:      plan.StatusFailedTerminal,
			Records: []recovery.Record{{
				StepIndex:      step.Index,
				Attempt:        1,
				OriginalAction: step.Action,
				Signature:      &sig,
				Pattern:        correction.PatternUnrecognized,
				Outcome:        plan.StatusFailedTerminal,
			}},
		}
	}
	return out
}
