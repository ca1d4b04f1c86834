package approval

import (
	"context"
)

// Approver answers the orchestrator's confirmation questions. Returning an
// error is treated as a refusal.
type Approver interface {
	// ApprovePlan is asked once, before anything runs.
	ApprovePlan(ctx context.Context, summary string) (bool, error)
	// ApproveWave is asked before a destructive wave when per-wave
	// confirmation is enabled.
	ApproveWave(ctx context.Context, waveIndex int, summary string) (bool, error)
	// ApproveRollback is asked after a terminal step failure when a
	// snapshot exists to restore.
	ApproveRollback(ctx context.Context, snapshotID, failure string) (bool, error)
}

// Auto answers from fixed settings without asking anyone.
type Auto struct {
	RejectPlan  bool
	RejectWaves bool
	// Rollback approves restoring the last snapshot after a failure.
	Rollback bool
}

// ApprovePlan implements Approver.
func (a Auto) ApprovePlan(context.Context, string) (bool, error) {
	return !a.RejectPlan, nil
}

// ApproveWave implements Approver.
func (a Auto) ApproveWave(context.Context, int, string) (bool, error) {
	return !a.RejectWaves, nil
}

// ApproveRollback implements Approver.
func (a Auto) ApproveRollback(context.Context, string, string) (bool, error) {
	return a.Rollback, nil
}

// Funcs adapts functions to Approver. A nil function approves.
type Funcs struct {
	Plan     func(ctx context.Context, summary string) (bool, error)
	Wave     func(ctx context.Context, waveIndex int, summary string) (bool, error)
	Rollback func(ctx context.Context, snapshotID, failure string) (bool, error)
}

// ApprovePlan implements Approver.
func (f Funcs) ApprovePlan(ctx context.Context, summary string) (bool, error) {
	if f.Plan == nil {
		return true, nil
	}
	return f.Plan(ctx, summary)
}

// ApproveWave implements Approver.
func (f Funcs) ApproveWave(ctx context.Context, waveIndex int, summary string) (bool, error) {
	if f.Wave == nil {
		return true, nil
	}
	return f.Wave(ctx, waveIndex, summary)
}

// ApproveRollback implements Approver.
func (f Funcs) ApproveRollback(ctx context.Context, snapshotID, failure string) (bool, error) {
	if f.Rollback == nil {
		return true, nil
	}
	return f.Rollback(ctx, snapshotID, failure)
}
