package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/executor/capture"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// signatureTailBytes bounds how much of stderr is carried in an error
// signature.
const signatureTailBytes = 4096

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process was killed.
const waitDelay = 2 * time.Second

// ResolveWorkingDir returns the absolute directory a RunCommand executes in.
func ResolveWorkingDir(root, wd string) string {
	switch {
	case wd == "":
		return root
	case filepath.IsAbs(wd):
		return filepath.Clean(wd)
	default:
		return filepath.Join(root, wd)
	}
}

// MissingWorkingDirPrefix starts the message reported when a command's
// working directory does not exist.
const MissingWorkingDirPrefix = "working directory does not exist: "

func (e *Executor) shellCommand(ctx context.Context, commandLine string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", commandLine)
	}
	return exec.CommandContext(ctx, e.shell, "-c", commandLine)
}

func (r *run) runCommand(a plan.RunCommand) {
	wd := ResolveWorkingDir(r.task.Root, a.WorkingDir)
	if info, err := os.Stat(wd); err != nil || !info.IsDir() {
		r.fail(errors.CategoryCommand, MissingWorkingDirPrefix+wd, ExitCodeNone)
		return
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = r.exec.timeout
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	stdout := capture.NewTail(r.exec.maxOutput)
	stderr := capture.NewTail(r.exec.maxOutput)

	cmd := r.exec.shellCommand(ctx, a.CommandLine)
	cmd.Dir = wd
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	err := cmd.Run()

	r.result.Stdout = stdout.String()
	r.result.Stderr = stderr.String()
	r.result.Truncated = stdout.Dropped() > 0 || stderr.Dropped() > 0

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		msg := fmt.Sprintf("command timed out after %s", timeout)
		if errors.Is(ctxErr, context.Canceled) {
			msg = "command canceled"
		}
		if tail := signatureTail(stderr); tail != "" {
			msg += ": " + tail
		}
		r.result.Error = &ErrorSignature{
			Category: errors.CategoryCommand,
			Message:  msg,
			ExitCode: ExitCodeNone,
			TimedOut: errors.Is(ctxErr, context.DeadlineExceeded),
		}
		return
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := signatureTail(stderr)
			if msg == "" {
				msg = signatureTail(stdout)
			}
			if msg == "" {
				msg = exitErr.Error()
			}
			r.fail(errors.CategoryCommand, msg, exitErr.ExitCode())
			return
		}
		// the shell itself could not be started
		r.fail(errors.CategoryCommand, err.Error(), ExitCodeNone)
	}
}

// signatureTail returns the last signatureTailBytes of a capture, trimmed.
func signatureTail(t *capture.Tail) string {
	b := t.Bytes()
	if len(b) > signatureTailBytes {
		b = b[len(b)-signatureTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
