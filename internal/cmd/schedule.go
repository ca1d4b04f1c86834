package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Check a plan file without running it",
	Long: `Parse a plan file, validate every step, and make sure its dependencies
can be scheduled. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <plan.yaml>",
	Short: "Show the waves a plan would run in",
	Long: `Show how a plan's steps are grouped into waves. Steps in the same wave
have no dependency on each other and run in parallel.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

var scheduleJSON bool

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleJSON, "json", false, "Output the schedule as JSON")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	stats, err := scheduler.Analyze(p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, p.Summary())
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Plan is valid: %d step(s) in %d wave(s)", p.Len(), stats.Waves)))
	return nil
}

type scheduleOutput struct {
	PlanID string          `json:"plan_id"`
	Waves  []scheduleWave  `json:"waves"`
	Stats  scheduler.Stats `json:"stats"`
}

type scheduleWave struct {
	Index       int   `json:"index"`
	Steps       []int `json:"steps"`
	Destructive bool  `json:"destructive"`
}

func runSchedule(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	waves, err := scheduler.Schedule(p)
	if err != nil {
		return err
	}
	stats := scheduler.StatsOf(waves)
	out := cmd.OutOrStdout()

	if scheduleJSON {
		result := scheduleOutput{PlanID: p.ID, Stats: stats, Waves: make([]scheduleWave, len(waves))}
		for i, w := range waves {
			result.Waves[i] = scheduleWave{Index: w.Index, Steps: w.Steps, Destructive: p.HasDestructive(w.Steps)}
		}
		return writeJSON(cmd, result)
	}

	for _, w := range waves {
		label := fmt.Sprintf("Wave %d", w.Index)
		if p.HasDestructive(w.Steps) {
			label += warningStyle.Render(" (destructive)")
		}
		fmt.Fprintln(out, headerStyle.Render(label))
		for _, idx := range w.Steps {
			fmt.Fprintf(out, "  [%d] %s\n", idx, truncate(p.Step(idx).Action.Describe(), maxLineWidth))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, field("Steps", fmt.Sprint(stats.TotalSteps)))
	fmt.Fprintln(out, field("Waves", fmt.Sprint(stats.Waves)))
	fmt.Fprintln(out, field("Parallel", fmt.Sprintf("%d step(s), widest wave %d", stats.ParallelSteps, stats.WidestWave)))
	fmt.Fprintln(out, field("Savings", fmt.Sprintf("~%.0f%% vs sequential", stats.SavingsPercent)))
	return nil
}
