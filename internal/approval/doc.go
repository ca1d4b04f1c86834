// Package approval provides the go/no-go decisions the orchestrator asks
// for: once per plan before any side effect, optionally once per
// destructive wave, and once when a failure leaves a snapshot to roll
// back to.
//
// # Implementations
//
//   - [Auto] answers every question from fixed settings, for unattended runs
//     and tests.
//   - [Prompt] asks on a terminal with a [y/N] prompt.
//   - [Funcs] adapts plain functions.
//
// # Usage
//
//	approver := approval.NewPrompt(os.Stdin, os.Stdout)
//	ok, err := approver.ApprovePlan(ctx, p.Summary())
package approval
