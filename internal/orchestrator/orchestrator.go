// Package orchestrator drives a plan through its lifecycle: scheduling,
// confirmation, wave-by-wave execution with checkpoints, and rollback.
//
// A single goroutine (the one calling Run) owns all lifecycle state. The
// control surface (Pause, Resume, Stop, StopAndRestore) only records
// requests and wakes that goroutine, which acts on them at wave boundaries.
// A wave that has been dispatched always drains before a request takes
// effect.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/autopilot/internal/approval"
	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/event"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/runloop"
	"github.com/Iron-Ham/autopilot/internal/snapshot"
)

// Snapshotter checkpoints and restores the plan root.
type Snapshotter interface {
	Create(ctx context.Context, root, label string) (*snapshot.Snapshot, error)
	Restore(ctx context.Context, id string) (*snapshot.Snapshot, error)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, r *Report) error
}

// Config tunes a run.
type Config struct {
	RunLoop runloop.Config
	// ConfirmEachWave asks the approver before every destructive wave.
	ConfirmEachWave bool
	// AutoRollback restores the last snapshot after a terminal step
	// failure without asking.
	AutoRollback bool
}

// Deps are the collaborators an Orchestrator drives. Only Steps is
// required.
type Deps struct {
	Steps runloop.StepRunner
	// Snapshots may be nil, in which case no checkpoints are taken and
	// failures always end in StateFailedAborted.
	Snapshots Snapshotter
	// Approver defaults to approving the plan and every wave while
	// declining rollback.
	Approver approval.Approver
	Bus      *event.Bus
	Recorder Recorder
	Logger   *logging.Logger
}

type controls struct {
	pause   bool
	stop    bool
	restore bool
}

// Orchestrator runs plans one at a time.
type Orchestrator struct {
	cfg       Config
	steps     runloop.StepRunner
	snapshots Snapshotter
	approver  approval.Approver
	bus       *event.Bus
	recorder  Recorder
	logger    *logging.Logger

	// mu guards the observable view below. Only the run goroutine writes it.
	mu       sync.RWMutex
	state    State
	progress Progress
	started  time.Time
	finished time.Time

	ctrlMu  sync.Mutex
	running bool
	ctrl    controls
	cancel  context.CancelFunc
	wake    chan struct{}
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Steps == nil {
		return nil, errors.NewValidationError("step runner is required").WithField("Steps")
	}
	approver := deps.Approver
	if approver == nil {
		approver = approval.Auto{}
	}
	bus := deps.Bus
	if bus == nil {
		bus = event.NewBus(deps.Logger)
	}
	return &Orchestrator{
		cfg:       cfg,
		steps:     deps.Steps,
		snapshots: deps.Snapshots,
		approver:  approver,
		bus:       bus,
		recorder:  deps.Recorder,
		logger:    logging.OrNop(deps.Logger).WithComponent("orchestrator"),
		state:     StateIdle,
		wake:      make(chan struct{}, 1),
	}, nil
}

// Bus returns the bus lifecycle events are published on.
func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Progress returns a snapshot of the current or last run.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p := o.progress
	p.State = o.state
	switch {
	case o.started.IsZero():
	case o.finished.IsZero():
		p.Elapsed = time.Since(o.started)
	default:
		p.Elapsed = o.finished.Sub(o.started)
	}
	return p
}

// Pause stops dispatching new waves once the current one drains. It has no
// effect when no plan is running.
func (o *Orchestrator) Pause() {
	o.signal(func(c *controls) { c.pause = true })
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() {
	o.signal(func(c *controls) { c.pause = false })
}

// Stop ends the run after in-flight steps return. The filesystem is left
// as it is.
func (o *Orchestrator) Stop() {
	o.signal(func(c *controls) { c.stop = true })
}

// StopAndRestore ends the run like Stop and then restores the most recent
// snapshot, if one was taken.
func (o *Orchestrator) StopAndRestore() {
	o.signal(func(c *controls) {
		c.stop = true
		c.restore = true
	})
}

func (o *Orchestrator) signal(apply func(*controls)) {
	o.ctrlMu.Lock()
	if !o.running {
		o.ctrlMu.Unlock()
		return
	}
	apply(&o.ctrl)
	if o.ctrl.stop && o.cancel != nil {
		o.cancel()
	}
	o.ctrlMu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) controls() controls {
	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	return o.ctrl
}

// begin claims the orchestrator for one run.
func (o *Orchestrator) begin(cancel context.CancelFunc) bool {
	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	o.ctrl = controls{}
	o.cancel = cancel
	select {
	case <-o.wake:
	default:
	}
	return true
}

func (o *Orchestrator) end() {
	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	o.running = false
	o.cancel = nil
}

// Run executes p and blocks until it reaches a terminal state.
//
// Stop lets in-flight steps finish. Cancelling ctx also cancels them,
// killing running commands and ending their retries.
//
// The returned error is non-nil when the plan could not be carried out:
// it failed validation or scheduling, was rejected, or a checkpoint,
// budget or confirmation failure aborted it. Step failures and stop
// requests are not errors; they are reported through Report.State.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan) (*Report, error) {
	if p == nil {
		return nil, errors.NewValidationError("plan is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !o.begin(cancel) {
		return nil, errors.ErrPlanRunning
	}
	defer o.end()

	r := o.newRun(ctx, p)
	err := r.execute(runCtx)
	r.finish(context.WithoutCancel(ctx))
	return r.report, err
}
