// Package internal contains integration tests that drive a plan file through
// the whole engine: scheduling, parallel execution with self-correction,
// checkpoints, the event bus, and the persisted ledger.
package internal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/event"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/ledger"
	"github.com/Iron-Ham/autopilot/internal/orchestrator"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/recovery"
	"github.com/Iron-Ham/autopilot/internal/runloop"
	"github.com/Iron-Ham/autopilot/internal/snapshot"
	"github.com/Iron-Ham/autopilot/internal/testutil"
)

const integrationPlan = `goal: build and commit
root: project
steps:
  - action: create_file
    path: README.md
    content: "# demo\n"
  - action: run_command
    command: echo built > out.txt
    working_dir: build
    depends_on: [0]
  - action: git_commit
    message: initial import
    depends_on: [1]
`

type engine struct {
	orch   *orchestrator.Orchestrator
	ledger *ledger.Store
	bus    *event.Bus
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	dataDir := t.TempDir()

	store, err := snapshot.NewStore(afero.NewOsFs(), filepath.Join(dataDir, "snapshots"), nil)
	if err != nil {
		t.Fatalf("failed to open snapshot store: %v", err)
	}
	led, err := ledger.Open(filepath.Join(dataDir, "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })

	exec := executor.New(executor.Options{DefaultTimeout: 10 * time.Second})
	steps := recovery.NewLoop(exec, correction.NewStrategy(correction.DefaultOptions()), 3, nil)

	bus := event.NewBus(nil)
	orch, err := orchestrator.New(orchestrator.Config{
		RunLoop: runloop.Config{Workers: 2, MaxSteps: 50, MaxDuration: time.Minute},
	}, orchestrator.Deps{
		Steps:     steps,
		Snapshots: store,
		Bus:       bus,
		Recorder:  led,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return &engine{orch: orch, ledger: led, bus: bus}
}

// TestPlanLifecycleIntegration runs a plan whose command step only succeeds
// after its missing working directory is created by a correction.
func TestPlanLifecycleIntegration(t *testing.T) {
	baseDir := t.TempDir()
	p, err := plan.Parse([]byte(integrationPlan), baseDir)
	if err != nil {
		t.Fatalf("failed to parse plan: %v", err)
	}

	e := newEngine(t)

	var mu sync.Mutex
	var received []string
	e.bus.SubscribeAll(func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev.EventType())
	})

	report, err := e.orch.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.State != orchestrator.StateCompleted {
		t.Fatalf("state = %s (%s), want completed", report.State, report.Reason)
	}

	// Filesystem effects
	root := filepath.Join(baseDir, "project")
	if got := testutil.ReadFile(t, root, "build/out.txt"); strings.TrimSpace(got) != "built" {
		t.Errorf("build/out.txt = %q, want %q", got, "built")
	}
	if n := testutil.CommitCount(t, root); n != 1 {
		t.Errorf("commit count = %d, want 1", n)
	}
	if msg := testutil.HeadMessage(t, root); !strings.Contains(msg, "initial import") {
		t.Errorf("HEAD message = %q", msg)
	}

	// Report and correction statistics
	if report.WavesCompleted != 3 {
		t.Errorf("WavesCompleted = %d, want 3", report.WavesCompleted)
	}
	if len(report.SnapshotIDs) != 3 {
		t.Errorf("got %d snapshots, want one per destructive wave", len(report.SnapshotIDs))
	}
	if report.LedgerStats.Corrected != 1 {
		t.Errorf("Corrected = %d, want 1", report.LedgerStats.Corrected)
	}
	if got := report.LedgerStats.ByPattern[correction.PatternMissingDirectory]; got != 1 {
		t.Errorf("missing directory failures = %d, want 1", got)
	}

	// Event stream
	mu.Lock()
	events := append([]string(nil), received...)
	mu.Unlock()
	if len(events) == 0 || events[0] != event.TypeStateChanged {
		t.Errorf("first event = %v, want %s", events, event.TypeStateChanged)
	}
	if events[len(events)-1] != event.TypePlanCompleted {
		t.Errorf("last event = %s, want %s", events[len(events)-1], event.TypePlanCompleted)
	}
	counts := make(map[string]int)
	for _, typ := range events {
		counts[typ]++
	}
	expected := map[string]int{
		event.TypeWaveStarted:         3,
		event.TypeWaveCompleted:       3,
		event.TypeStepCompleted:       3,
		event.TypeSnapshotCreated:     3,
		event.TypeCorrectionAttempted: 1,
		event.TypePlanCompleted:       1,
	}
	for typ, want := range expected {
		if counts[typ] != want {
			t.Errorf("%s events = %d, want %d", typ, counts[typ], want)
		}
	}

	// Persisted ledger
	runs, err := e.ledger.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to read runs: %v", err)
	}
	if len(runs) != 1 || runs[0].PlanID != p.ID || runs[0].State != "completed" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	records, err := e.ledger.Corrections(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("failed to read corrections: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	var corrected int
	for _, r := range records {
		if r.Corrected != nil {
			corrected++
			if r.StepIndex != 1 || r.Pattern != string(correction.PatternMissingDirectory) {
				t.Errorf("unexpected corrected record: %+v", r)
			}
		}
	}
	if corrected != 1 {
		t.Errorf("corrected records = %d, want 1", corrected)
	}
}

// TestSequentialRunsShareEngine checks that one orchestrator runs plans
// back to back, each with its own budget and ledger entry.
func TestSequentialRunsShareEngine(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	for i := range 2 {
		p, err := plan.Parse([]byte("root: out\nsteps:\n  - action: create_file\n    path: f.txt\n    content: x\n"), t.TempDir())
		if err != nil {
			t.Fatalf("run %d: failed to parse plan: %v", i, err)
		}
		report, err := e.orch.Run(ctx, p)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if report.State != orchestrator.StateCompleted {
			t.Errorf("run %d: state = %s, want completed", i, report.State)
		}
	}

	runs, err := e.ledger.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("failed to read runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
	if runs[0].PlanID == runs[1].PlanID {
		t.Error("each run should record its own plan id")
	}
}
