package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autopilot/internal/approval"
	"github.com/Iron-Ham/autopilot/internal/config"
	"github.com/Iron-Ham/autopilot/internal/correction"
	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/event"
	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/orchestrator"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/recovery"
	"github.com/Iron-Ham/autopilot/internal/runloop"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a plan",
	Long: `Execute a plan file wave by wave.

The plan summary is shown and must be approved before anything runs. A
snapshot of the plan root is taken before each wave that modifies it. When
a step fails after all retries, the last snapshot can be restored.

Interrupt once to stop after the running wave drains; interrupt again to
kill running commands and abort.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runYes             bool
	runAutoRollback    bool
	runConfirmEachWave bool
	runNoSnapshot      bool
	runWorkers         int
)

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the plan and every wave without prompting")
	runCmd.Flags().BoolVar(&runAutoRollback, "auto-rollback", false, "Restore the last snapshot after a failure without asking")
	runCmd.Flags().BoolVar(&runConfirmEachWave, "confirm-each-wave", false, "Ask before every destructive wave")
	runCmd.Flags().BoolVar(&runNoSnapshot, "no-snapshot", false, "Do not take snapshots (failures cannot be rolled back)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Parallel step limit (0 = sized to this machine)")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides configuration with flags given on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("auto-rollback") {
		cfg.Orchestrator.AutoRollback = runAutoRollback
	}
	if flags.Changed("confirm-each-wave") {
		cfg.Orchestrator.ConfirmEachWave = runConfirmEachWave
	}
	if flags.Changed("no-snapshot") {
		cfg.Snapshot.Enabled = !runNoSnapshot
	}
	if flags.Changed("workers") {
		cfg.RunLoop.Workers = runWorkers
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	approver, err := newApprover(cmd, cfg)
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Close() }()

	orch, closeDeps, err := buildOrchestrator(cfg, approver, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	out := cmd.OutOrStdout()
	printer := newProgressPrinter(out, p)
	printer.attach(orch.Bus())
	defer printer.detach(orch.Bus())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := handleInterrupts(orch, cancel, cmd.ErrOrStderr())
	defer stopSignals()

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Running plan %s", p.ID)))
	report, runErr := orch.Run(ctx, p)
	if report != nil {
		printReport(out, report)
	}
	if runErr != nil {
		return runErr
	}
	if report.State != orchestrator.StateCompleted {
		return planError(report)
	}
	return nil
}

// planError describes an unsuccessful run by its first failed step.
func planError(report *orchestrator.Report) error {
	for _, o := range report.Outcomes {
		if !o.Succeeded() && o.Result.Error != nil {
			return errors.Wrapf(o.Result.Error.Err(o.StepIndex), "plan ended in state %s", report.State)
		}
	}
	return fmt.Errorf("plan ended in state %s", report.State)
}

// newApprover picks how confirmation questions are answered. Prompting
// needs a terminal on stdin; otherwise --yes is required.
func newApprover(cmd *cobra.Command, cfg *config.Config) (approval.Approver, error) {
	if runYes {
		return approval.Auto{Rollback: cfg.Orchestrator.AutoRollback}, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); !ok || !approval.Interactive(f) {
		return nil, fmt.Errorf("stdin is not a terminal; pass --yes to run without confirmation")
	}
	return approval.NewPrompt(in, cmd.OutOrStdout()), nil
}

// buildOrchestrator wires the executor, correction strategy, recovery loop,
// snapshot store, and ledger into an Orchestrator. The returned func
// releases whatever was opened.
func buildOrchestrator(cfg *config.Config, approver approval.Approver, logger *logging.Logger) (*orchestrator.Orchestrator, func(), error) {
	exec := executor.New(executor.Options{
		Shell:          cfg.Executor.Shell,
		DefaultTimeout: cfg.Executor.CommandTimeout(),
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		Author: executor.Author{
			Name:  cfg.Git.AuthorName,
			Email: cfg.Git.AuthorEmail,
		},
		Logger: logger,
	})
	strategy := correction.NewStrategy(correction.Options{
		Threshold: cfg.Recovery.ConfidenceThreshold,
		AllowSudo: cfg.Recovery.AllowSudo,
	})

	bus := event.NewBus(logger)
	if cfg.Logging.Enabled {
		bus.SubscribeAll(func(e event.Event) {
			logger.Debug("event", "type", e.EventType())
		})
	}

	deps := orchestrator.Deps{
		Steps:    recovery.NewLoop(exec, strategy, cfg.Recovery.MaxAttempts, logger),
		Approver: approver,
		Bus:      bus,
		Logger:   logger,
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if cfg.Snapshot.Enabled {
		store, err := openSnapshotStore(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Snapshots = store
	}
	if cfg.Ledger.Enabled {
		store, err := openLedger(cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store)
		deps.Recorder = store
	}

	orch, err := orchestrator.New(orchestrator.Config{
		RunLoop: runloop.Config{
			Workers:     workerCount(cfg, logger),
			MaxSteps:    cfg.RunLoop.MaxSteps,
			MaxDuration: cfg.RunLoop.MaxDuration(),
		},
		ConfirmEachWave: cfg.Orchestrator.ConfirmEachWave,
		AutoRollback:    cfg.Orchestrator.AutoRollback,
	}, deps)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return orch, closeAll, nil
}

// handleInterrupts stops the run on the first SIGINT or SIGTERM and cancels
// it on the second.
func handleInterrupts(orch *orchestrator.Orchestrator, cancel context.CancelFunc, errOut io.Writer) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(errOut, warningStyle.Render("Stopping after the current wave (interrupt again to kill running commands)"))
		orch.Stop()

		select {
		case <-sigCh:
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
