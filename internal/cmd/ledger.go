package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autopilot/internal/ledger"
	"github.com/Iron-Ham/autopilot/internal/orchestrator"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recorded runs",
	Long: `Show the runs recorded in the ledger, newest first. Use 'ledger show'
to list every attempt and correction made for a plan.`,
	Args: cobra.NoArgs,
	RunE: runLedgerList,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show the attempts and corrections recorded for a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerShow,
}

var (
	ledgerLimit int
	ledgerJSON  bool
)

func init() {
	ledgerCmd.PersistentFlags().BoolVar(&ledgerJSON, "json", false, "Output as JSON")
	ledgerCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 20, "Number of runs to show (0 = all)")
	ledgerCmd.AddCommand(ledgerShowCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func withLedger(fn func(*ledger.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	return withLedger(func(store *ledger.Store) error {
		runs, err := store.Runs(cmd.Context(), ledgerLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if ledgerJSON {
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}

		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  %d/%d steps  %s  %s\n",
				r.PlanID,
				stateStyle(orchestrator.State(r.State)).Render(r.State),
				r.Succeeded, r.Steps,
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
				mutedStyle.Render(humanize.Time(r.StartedAt)))
			if r.Reason != "" {
				fmt.Fprintf(out, "  %s\n", mutedStyle.Render(r.Reason))
			}
		}
		return nil
	})
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	return withLedger(func(store *ledger.Store) error {
		corrections, err := store.Corrections(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if ledgerJSON {
			return writeJSON(cmd, corrections)
		}
		if len(corrections) == 0 {
			fmt.Fprintf(out, "No records for plan %s\n", args[0])
			return nil
		}

		for _, c := range corrections {
			fmt.Fprintf(out, "step %d attempt %d  %s\n", c.StepIndex, c.Attempt, c.Outcome)
			if c.Category != "" {
				fmt.Fprintf(out, "  %s\n", errorStyle.Render(truncate(fmt.Sprintf("%s (exit %d): %s", c.Category, c.ExitCode, c.Message), maxLineWidth)))
			}
			if c.Corrected != nil {
				fmt.Fprintf(out, "  %s\n", warningStyle.Render(fmt.Sprintf("%s %.2f: %s", c.Pattern, c.Confidence, c.Note)))
			}
		}
		return nil
	})
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
