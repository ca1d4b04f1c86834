package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Iron-Ham/autopilot/internal/event"
	"github.com/Iron-Ham/autopilot/internal/orchestrator"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// progressPrinter renders lifecycle events as they are published.
type progressPrinter struct {
	out  io.Writer
	plan *plan.Plan

	mu   sync.Mutex
	subs []string
}

func newProgressPrinter(out io.Writer, p *plan.Plan) *progressPrinter {
	return &progressPrinter{out: out, plan: p}
}

// attach subscribes the printer to every event type it renders.
func (pp *progressPrinter) attach(bus *event.Bus) {
	handlers := map[string]event.Handler{
		event.TypeWaveStarted:         pp.waveStarted,
		event.TypeWaveCompleted:       pp.waveCompleted,
		event.TypeStepCompleted:       pp.stepCompleted,
		event.TypeSnapshotCreated:     pp.snapshotCreated,
		event.TypeSnapshotRestored:    pp.snapshotRestored,
		event.TypeCorrectionAttempted: pp.correctionAttempted,
	}
	for eventType, h := range handlers {
		pp.subs = append(pp.subs, bus.Subscribe(eventType, h))
	}
}

func (pp *progressPrinter) detach(bus *event.Bus) {
	for _, id := range pp.subs {
		bus.Unsubscribe(id)
	}
	pp.subs = nil
}

func (pp *progressPrinter) printf(format string, args ...any) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	fmt.Fprintf(pp.out, format, args...)
}

func (pp *progressPrinter) waveStarted(e event.Event) {
	ev, ok := e.(event.WaveStartedEvent)
	if !ok {
		return
	}
	kind := "read-only"
	if ev.Destructive {
		kind = "destructive"
	}
	pp.printf("%s %s\n",
		headerStyle.Render(fmt.Sprintf("Wave %d", ev.WaveIndex)),
		mutedStyle.Render(fmt.Sprintf("%d step(s), %s", ev.StepCount, kind)))
}

func (pp *progressPrinter) waveCompleted(e event.Event) {
	ev, ok := e.(event.WaveCompletedEvent)
	if !ok {
		return
	}
	d := ev.Duration.Round(time.Millisecond)
	if len(ev.Failed) > 0 {
		pp.printf("  %s\n", errorStyle.Render(fmt.Sprintf("wave %d failed in %s (steps %s)", ev.WaveIndex, d, joinInts(ev.Failed))))
		return
	}
	pp.printf("  %s\n", mutedStyle.Render(fmt.Sprintf("wave %d done in %s", ev.WaveIndex, d)))
}

func (pp *progressPrinter) stepCompleted(e event.Event) {
	ev, ok := e.(event.StepCompletedEvent)
	if !ok {
		return
	}
	desc := fmt.Sprintf("step %d", ev.StepIndex)
	if ev.StepIndex >= 0 && ev.StepIndex < pp.plan.Len() {
		desc = truncate(fmt.Sprintf("[%d] %s", ev.StepIndex, pp.plan.Step(ev.StepIndex).Action.Describe()), maxLineWidth)
	}
	attempts := ""
	if ev.Attempts > 1 {
		attempts = mutedStyle.Render(fmt.Sprintf(" (%d attempts)", ev.Attempts))
	}
	if ev.Success {
		pp.printf("  %s %s%s\n", successStyle.Render("✓"), desc, attempts)
		return
	}
	pp.printf("  %s %s%s\n", errorStyle.Render("✗"), desc, attempts)
}

func (pp *progressPrinter) snapshotCreated(e event.Event) {
	ev, ok := e.(event.SnapshotCreatedEvent)
	if !ok {
		return
	}
	pp.printf("  %s\n", mutedStyle.Render(fmt.Sprintf("checkpoint %s (%s files)", ev.SnapshotID, humanize.Comma(int64(ev.FileCount)))))
}

func (pp *progressPrinter) snapshotRestored(e event.Event) {
	ev, ok := e.(event.SnapshotRestoredEvent)
	if !ok {
		return
	}
	pp.printf("%s\n", warningStyle.Render("Restored "+ev.SnapshotID))
}

func (pp *progressPrinter) correctionAttempted(e event.Event) {
	ev, ok := e.(event.CorrectionAttemptedEvent)
	if !ok || ev.Outcome != string(plan.StatusRetrying) {
		return
	}
	how := "retrying as is"
	if ev.Corrected {
		how = "retrying with a correction"
	}
	pp.printf("  %s\n", warningStyle.Render(fmt.Sprintf("step %d attempt %d failed (%s), %s", ev.StepIndex, ev.Attempt, ev.Pattern, how)))
}

// printReport renders the final summary of a run.
func printReport(out io.Writer, r *orchestrator.Report) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, field("Result", stateStyle(r.State).Render(r.State.String())))
	if r.Reason != "" {
		fmt.Fprintln(out, field("Reason", r.Reason))
	}
	fmt.Fprintln(out, field("Plan", r.PlanID))
	fmt.Fprintln(out, field("Waves", fmt.Sprintf("%d/%d", r.WavesCompleted, len(r.Waves))))
	fmt.Fprintln(out, field("Steps", fmt.Sprintf("%d succeeded, %d failed", r.StepsSucceeded(), len(r.FailedSteps))))
	if r.LedgerStats.Attempts > 0 {
		fmt.Fprintln(out, field("Attempts", fmt.Sprintf("%d (%d failed, %d corrected)",
			r.LedgerStats.Attempts, r.LedgerStats.Failures, r.LedgerStats.Corrected)))
	}
	if id := r.FinalSnapshotID(); id != "" {
		fmt.Fprintln(out, field("Snapshot", id))
	}
	fmt.Fprintln(out, field("Duration", r.Duration().Round(time.Millisecond).String()))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
