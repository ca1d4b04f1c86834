// Package executor runs a single plan action and reports a structured
// result. An Executor holds configuration only; each call to Execute is
// independent and safe to run concurrently with others.
package executor

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/logging"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultTimeout        = 120 * time.Second
	DefaultMaxOutputBytes = 1 << 20
	DefaultShell          = "sh"
	DefaultAuthorName     = "autopilot"
	DefaultAuthorEmail    = "autopilot@localhost"
)

// ExitCodeNone marks a signature that did not come from a process exit.
const ExitCodeNone = -1

// ErrorSignature is the classified description of a failed attempt. It is
// what the correction strategy matches against.
type ErrorSignature struct {
	Category errors.StepCategory `json:"category"`
	Message  string              `json:"message"`
	ExitCode int                 `json:"exit_code"`
	TimedOut bool                `json:"timed_out,omitempty"`
}

// Err converts the signature into a *errors.StepError for the given step.
// A timed-out attempt wraps errors.ErrTimeout.
func (s ErrorSignature) Err(stepIndex int) error {
	var cause error
	if s.TimedOut {
		cause = errors.ErrTimeout
	}
	e := errors.NewStepError(s.Category, s.Message, cause).WithStepIndex(stepIndex)
	if s.ExitCode != ExitCodeNone {
		e = e.WithExitCode(s.ExitCode)
	}
	return e
}

func (s ErrorSignature) String() string {
	if s.ExitCode != ExitCodeNone {
		return fmt.Sprintf("%s (exit %d): %s", s.Category, s.ExitCode, s.Message)
	}
	return fmt.Sprintf("%s: %s", s.Category, s.Message)
}

// StepResult is the outcome of one execution attempt.
type StepResult struct {
	StepIndex    int             `json:"step_index"`
	Success      bool            `json:"success"`
	Stdout       string          `json:"stdout,omitempty"`
	Stderr       string          `json:"stderr,omitempty"`
	WrittenPaths []string        `json:"written_paths,omitempty"`
	Commit       string          `json:"commit,omitempty"`
	Truncated    bool            `json:"truncated,omitempty"`
	Error        *ErrorSignature `json:"error,omitempty"`
	Duration     time.Duration   `json:"duration"`
}

// Task is everything needed to run one action: no references to
// orchestrator state are carried.
type Task struct {
	StepIndex int
	Root      string
	Action    plan.Action
}

// Author identifies the commit author for GitCommit actions.
type Author struct {
	Name  string
	Email string
}

// Options configures an Executor.
type Options struct {
	// Fs backs file and directory actions. Defaults to the OS filesystem.
	// Commands and git operations always act on the real filesystem.
	Fs             afero.Fs
	Shell          string
	DefaultTimeout time.Duration
	MaxOutputBytes int
	Author         Author
	Logger         *logging.Logger
}

// Executor runs actions. It is stateless between calls.
type Executor struct {
	fs        afero.Fs
	shell     string
	timeout   time.Duration
	maxOutput int
	author    Author
	logger    *logging.Logger
	now       func() time.Time
}

// New creates an Executor, filling unset options with defaults.
func New(opts Options) *Executor {
	e := &Executor{
		fs:        opts.Fs,
		shell:     opts.Shell,
		timeout:   opts.DefaultTimeout,
		maxOutput: opts.MaxOutputBytes,
		author:    opts.Author,
		logger:    logging.OrNop(opts.Logger).WithComponent("executor"),
		now:       time.Now,
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.shell == "" {
		e.shell = DefaultShell
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutputBytes
	}
	if e.author.Name == "" {
		e.author.Name = DefaultAuthorName
	}
	if e.author.Email == "" {
		e.author.Email = DefaultAuthorEmail
	}
	return e
}

// Execute runs t.Action once and returns its result. It never panics on
// action failure and never returns step-level failures as Go errors: they
// are reported in StepResult.Error.
func (e *Executor) Execute(ctx context.Context, t Task) StepResult {
	start := e.now()
	r := &run{ctx: ctx, exec: e, task: t, result: StepResult{StepIndex: t.StepIndex}}

	if t.Action == nil {
		r.fail(errors.CategoryIO, "step has no action", ExitCodeNone)
	} else {
		t.Action.Accept(r)
	}

	r.result.Duration = e.now().Sub(start)
	if r.result.Error == nil {
		r.result.Success = true
	}
	e.logger.WithStep(t.StepIndex).Debug("action executed",
		"kind", kindOf(t.Action),
		"success", r.result.Success,
		"duration_ms", r.result.Duration.Milliseconds())
	return r.result
}

func kindOf(a plan.Action) string {
	if a == nil {
		return ""
	}
	return string(a.Kind())
}

// run is the per-call visitor. It is discarded after Execute returns.
type run struct {
	ctx    context.Context
	exec   *Executor
	task   Task
	result StepResult
}

func (r *run) fail(category errors.StepCategory, msg string, exitCode int) {
	r.result.Error = &ErrorSignature{Category: category, Message: msg, ExitCode: exitCode}
}

// failFS records a filesystem error, separating permission problems from
// other I/O failures.
func (r *run) failFS(err error) {
	category := errors.CategoryIO
	if errors.Is(err, fs.ErrPermission) {
		category = errors.CategoryPermission
	}
	r.fail(category, err.Error(), ExitCodeNone)
}

// rootFs confines file actions to the plan root.
func (r *run) rootFs() afero.Fs {
	return afero.NewBasePathFs(r.exec.fs, r.task.Root)
}

func (r *run) VisitCreateFile(a plan.CreateFile) {
	fsys := r.rootFs()
	rel := filepath.Clean(a.Path)

	// "." is the plan root itself, which may not exist yet.
	if err := fsys.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		r.failFS(err)
		return
	}
	if err := afero.WriteFile(fsys, rel, []byte(a.Content), 0o644); err != nil {
		r.failFS(err)
		return
	}
	r.result.WrittenPaths = []string{filepath.Join(r.task.Root, rel)}
}

func (r *run) VisitCreateDirectoryTree(a plan.CreateDirectoryTree) {
	fsys := r.rootFs()
	for _, p := range a.Paths {
		rel := filepath.Clean(p)
		if err := fsys.MkdirAll(rel, 0o755); err != nil {
			r.failFS(err)
			return
		}
		r.result.WrittenPaths = append(r.result.WrittenPaths, filepath.Join(r.task.Root, rel))
	}
}

func (r *run) VisitRunCommand(a plan.RunCommand) {
	r.runCommand(a)
}

func (r *run) VisitGitCommit(a plan.GitCommit) {
	r.gitCommit(a)
}
