package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/event"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/recovery"
	"github.com/Iron-Ham/autopilot/internal/runloop"
	"github.com/Iron-Ham/autopilot/internal/scheduler"
)

// run holds the state of a single plan execution. It is created by Run
// and discarded when Run returns.
type run struct {
	o      *Orchestrator
	plan   *plan.Plan
	logger *logging.Logger
	runner *runloop.Runner
	ledger *recovery.Ledger
	report *Report

	// steps is the context in-flight steps run under. Stop leaves it alive
	// so a dispatched wave drains; only the caller's cancellation ends it.
	steps context.Context

	// dirty is set while no checkpoint covers the effects of the last
	// destructive wave.
	dirty bool
}

func (o *Orchestrator) newRun(steps context.Context, p *plan.Plan) *run {
	logger := o.logger.WithPlan(p.ID)
	now := time.Now()

	o.mu.Lock()
	o.started = now
	o.finished = time.Time{}
	o.progress = Progress{PlanID: p.ID, TotalSteps: p.Len()}
	o.mu.Unlock()

	return &run{
		o:      o,
		plan:   p,
		logger: logger,
		runner: runloop.New(o.cfg.RunLoop, o.steps, logger),
		ledger: recovery.NewLedger(),
		report: &Report{PlanID: p.ID, Root: p.Root, TotalSteps: p.Len(), StartedAt: now},
		steps:  steps,
		dirty:  true,
	}
}

// errWaveDeclined marks a destructive wave the approver refused.
var errWaveDeclined = fmt.Errorf("wave declined: %w", errors.ErrPlanRejected)

func (r *run) execute(ctx context.Context) error {
	r.transition(StatePlanning)
	waves, err := scheduler.Schedule(r.plan)
	if err != nil {
		r.terminate(StateFailedAborted, "scheduling failed: "+err.Error())
		return err
	}
	r.report.Waves = waves
	r.o.mu.Lock()
	r.o.progress.TotalWaves = len(waves)
	r.o.mu.Unlock()
	r.logger.Info("plan scheduled", "steps", r.plan.Len(), "waves", len(waves))

	r.transition(StateAwaitingConfirmation)
	ok, err := r.o.approver.ApprovePlan(ctx, r.planSummary(waves))
	switch {
	case r.interrupted(ctx):
		return r.halt(ctx)
	case err != nil:
		r.terminate(StateFailedAborted, "confirmation failed: "+err.Error())
		return err
	case !ok:
		r.logger.Info("plan rejected")
		r.terminate(StateFailedAborted, "plan rejected")
		return errors.ErrPlanRejected
	}
	r.transition(StateExecuting)

	for _, wave := range waves {
		if r.checkpoint(ctx) {
			return r.halt(ctx)
		}

		failed, err := r.runWave(ctx, wave)
		if err != nil {
			if errors.IsCancellation(err) || r.interrupted(ctx) {
				return r.halt(ctx)
			}
			reason := fmt.Sprintf("wave %d: %v", wave.Index, err)
			r.logger.Error("wave aborted", "wave", wave.Index, "error", err.Error())
			r.terminate(StateFailedAborted, reason)
			return err
		}
		r.report.WavesCompleted++

		if len(failed) > 0 {
			return r.handleFailure(ctx, failed)
		}
	}

	r.terminate(StateCompleted, fmt.Sprintf("all %d wave(s) succeeded", len(waves)))
	return nil
}

// checkpoint applies pending control requests at a wave boundary and
// blocks while the run is paused. It reports whether the run must stop.
func (r *run) checkpoint(ctx context.Context) bool {
	for {
		c := r.o.controls()
		if c.stop || ctx.Err() != nil {
			return true
		}
		if !c.pause {
			if r.o.State() == StatePaused {
				r.logger.Info("run resumed")
				r.transition(StateExecuting)
			}
			return false
		}
		if r.o.State() != StatePaused {
			r.logger.Info("run paused", "next_wave", r.report.WavesCompleted)
			r.transition(StatePaused)
		}
		select {
		case <-r.o.wake:
		case <-ctx.Done():
		}
	}
}

// interrupted reports whether a stop request or the caller's context ended
// the run.
func (r *run) interrupted(ctx context.Context) bool {
	return r.o.controls().stop || ctx.Err() != nil
}

// halt finishes a stopped run, restoring the last snapshot when that was
// requested.
func (r *run) halt(ctx context.Context) error {
	c := r.o.controls()
	reason := r.stopReason(ctx)
	r.logger.Info("run stopped", "reason", reason, "restore", c.restore)

	state := r.o.State()
	canRestore := state == StateExecuting || state == StatePaused
	if c.restore && canRestore && r.o.snapshots != nil && r.report.LastSnapshotID() != "" {
		return r.rollback(ctx, r.report.LastSnapshotID(), reason)
	}
	r.terminate(StateFailedAborted, reason)
	return nil
}

func (r *run) stopReason(ctx context.Context) string {
	if r.o.controls().stop {
		return "stopped"
	}
	if cause := context.Cause(ctx); cause != nil {
		return "canceled: " + cause.Error()
	}
	return "canceled"
}

// runWave performs the per-wave protocol and returns the steps that failed
// terminally. An error means the wave could not be run at all.
func (r *run) runWave(ctx context.Context, wave scheduler.Wave) ([]int, error) {
	logger := r.logger.WithWave(wave.Index)
	destructive := r.plan.HasDestructive(wave.Steps)

	if destructive && r.o.cfg.ConfirmEachWave {
		ok, err := r.o.approver.ApproveWave(ctx, wave.Index, r.waveSummary(wave))
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Info("wave declined")
			return nil, errWaveDeclined
		}
	}

	if destructive && r.dirty && r.o.snapshots != nil {
		label := fmt.Sprintf("plan %s before wave %d", r.plan.ID, wave.Index)
		snap, err := r.o.snapshots.Create(ctx, r.plan.Root, label)
		if err != nil {
			return nil, err
		}
		r.dirty = false
		r.report.SnapshotIDs = append(r.report.SnapshotIDs, snap.ID)
		r.o.mu.Lock()
		r.o.progress.Snapshots = len(r.report.SnapshotIDs)
		r.o.mu.Unlock()
		logger.Info("checkpoint taken", "snapshot_id", snap.ID, "files", snap.Files)
		r.o.bus.Publish(event.NewSnapshotCreatedEvent(snap.ID, wave.Index, snap.Files))
	}

	steps := make([]plan.Step, len(wave.Steps))
	for i, idx := range wave.Steps {
		steps[i] = r.plan.Step(idx)
	}

	r.o.mu.Lock()
	r.o.progress.WaveIndex = wave.Index
	r.o.mu.Unlock()
	r.o.bus.Publish(event.NewWaveStartedEvent(wave.Index, len(steps), destructive))
	logger.Info("wave dispatched", "steps", len(steps), "destructive", destructive)

	if r.interrupted(ctx) {
		return nil, errors.NewCancellationError("wave not dispatched")
	}
	started := time.Now()
	outcomes, err := r.runner.RunWave(r.steps, r.plan.Root, steps)
	if err != nil {
		return nil, err
	}

	var failed []int
	for _, out := range outcomes {
		r.ledger.Append(out.Records...)
		for _, rec := range out.Records {
			if rec.Signature == nil {
				continue
			}
			r.o.bus.Publish(event.NewCorrectionAttemptedEvent(
				rec.StepIndex, rec.Attempt, rec.Pattern.String(), rec.Corrected(), string(rec.Outcome)))
		}
		r.o.bus.Publish(event.NewStepCompletedEvent(out.StepIndex, out.Succeeded(), out.Attempts, out.Result.Duration))
		if !out.Succeeded() {
			failed = append(failed, out.StepIndex)
		}
	}
	r.report.Outcomes = append(r.report.Outcomes, outcomes...)
	if destructive {
		r.dirty = true
	}

	r.o.mu.Lock()
	r.o.progress.StepsDone += len(outcomes)
	r.o.mu.Unlock()

	elapsed := time.Since(started)
	r.o.bus.Publish(event.NewWaveCompletedEvent(wave.Index, failed, elapsed))
	logger.Info("wave completed",
		"duration", elapsed.String(),
		"failed", len(failed),
		"percent_done", r.o.Progress().Percent())
	return failed, nil
}

// handleFailure ends the run after a terminal step failure, offering to
// restore the most recent snapshot.
func (r *run) handleFailure(ctx context.Context, failed []int) error {
	r.report.FailedSteps = failed
	reason := r.failureReason(failed)

	id := r.report.LastSnapshotID()
	canRestore := id != "" && r.o.snapshots != nil

	// A stopped run only rolls back when restore was requested.
	if r.interrupted(ctx) {
		if canRestore && r.o.controls().restore {
			return r.rollback(ctx, id, reason)
		}
		r.terminate(StateFailedAborted, reason+"; "+r.stopReason(ctx))
		return nil
	}
	if !canRestore {
		r.terminate(StateFailedAborted, reason+"; no snapshot to roll back to")
		return nil
	}

	accept := r.o.cfg.AutoRollback
	if !accept {
		ok, err := r.o.approver.ApproveRollback(ctx, id, reason)
		switch {
		case err != nil && r.interrupted(ctx):
			accept = r.o.controls().restore
		case err != nil:
			r.logger.Warn("rollback confirmation failed", "error", err.Error())
		default:
			accept = ok
		}
	}
	if !accept {
		r.terminate(StateFailedAborted, reason+"; rollback declined")
		return nil
	}
	return r.rollback(ctx, id, reason)
}

// rollback restores id. A failed restore is not retried.
func (r *run) rollback(ctx context.Context, id, reason string) error {
	r.logger.Info("rolling back", "snapshot_id", id)
	if _, err := r.o.snapshots.Restore(context.WithoutCancel(ctx), id); err != nil {
		r.logger.Error("rollback failed", "snapshot_id", id, "error", err.Error())
		r.terminate(StateFailedAborted, reason+"; rollback failed: "+err.Error())
		return err
	}
	r.report.RestoredSnapshotID = id
	r.o.bus.Publish(event.NewSnapshotRestoredEvent(id))
	r.terminate(StateRolledBack, reason+"; restored "+id)
	return nil
}

func (r *run) failureReason(failed []int) string {
	parts := make([]string, 0, len(failed))
	for _, idx := range failed {
		recs := r.ledger.ForStep(idx)
		if len(recs) == 0 {
			parts = append(parts, fmt.Sprintf("step %d: failed", idx))
			continue
		}
		last := recs[len(recs)-1]
		msg := "failed"
		if last.Signature != nil {
			msg = last.Signature.String()
		}
		parts = append(parts, fmt.Sprintf("step %d: %s after %d attempt(s)", idx, msg, last.Attempt))
	}
	if len(parts) == 0 {
		return "no step failed"
	}
	return strings.Join(parts, "; ")
}

func (r *run) transition(next State) {
	r.o.mu.Lock()
	prev := r.o.state
	if !prev.CanTransition(next) {
		r.o.mu.Unlock()
		r.logger.Error("illegal state transition", "from", prev.String(), "to", next.String())
		return
	}
	r.o.state = next
	r.o.mu.Unlock()

	r.logger.Debug("state changed", "from", prev.String(), "to", next.String())
	r.o.bus.Publish(event.NewStateChangedEvent(prev.String(), next.String()))
}

func (r *run) terminate(state State, reason string) {
	r.report.Reason = reason
	r.transition(state)
}

// finish completes the report, publishes the terminal event and records
// the run.
func (r *run) finish(ctx context.Context) {
	now := time.Now()
	r.report.State = r.o.State()
	r.report.FinishedAt = now
	r.report.Ledger = r.ledger.Records()
	r.report.LedgerStats = r.ledger.Stats()

	r.o.mu.Lock()
	r.o.finished = now
	r.o.mu.Unlock()

	r.logger.Info("plan finished",
		"state", r.report.State.String(),
		"reason", r.report.Reason,
		"steps_succeeded", r.report.StepsSucceeded(),
		"corrections", len(r.report.Ledger),
		"snapshot_id", r.report.FinalSnapshotID(),
		"duration", r.report.Duration().String())
	r.o.bus.Publish(event.NewPlanCompletedEvent(
		r.report.PlanID, r.report.State.String(), r.report.Reason, r.report.FinalSnapshotID()))

	if r.o.recorder != nil {
		if err := r.o.recorder.RecordRun(ctx, r.report); err != nil {
			r.logger.Warn("failed to record run", "error", err.Error())
		}
	}
}

func (r *run) planSummary(waves []scheduler.Wave) string {
	stats := scheduler.StatsOf(waves)
	var b strings.Builder
	b.WriteString(r.plan.Summary())
	fmt.Fprintf(&b, "%d wave(s), up to %d step(s) in parallel\n", stats.Waves, stats.WidestWave)
	return b.String()
}

func (r *run) waveSummary(wave scheduler.Wave) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wave %d (%d step(s)):\n", wave.Index, len(wave.Steps))
	for _, idx := range wave.Steps {
		fmt.Fprintf(&b, "  [%d] %s\n", idx, r.plan.Step(idx).Action.Describe())
	}
	return b.String()
}
