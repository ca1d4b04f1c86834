package plan

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies an action variant.
type Kind string

// Action kinds. The string values are the wire names used in plan files.
const (
	KindCreateFile          Kind = "create_file"
	KindCreateDirectoryTree Kind = "create_directory_tree"
	KindRunCommand          Kind = "run_command"
	KindGitCommit           Kind = "git_commit"
)

// Visitor is implemented by every component that behaves differently per
// action kind. Adding a variant adds a method here, so every consumer fails
// to compile until it handles the new kind.
type Visitor interface {
	VisitCreateFile(CreateFile)
	VisitCreateDirectoryTree(CreateDirectoryTree)
	VisitRunCommand(RunCommand)
	VisitGitCommit(GitCommit)
}

// Action is the closed set of things a step can do. Implementations are
// plain values with no references to orchestrator state so they can be
// handed to a worker as-is.
type Action interface {
	Kind() Kind
	// Destructive reports whether running the action can overwrite or
	// otherwise alter existing state under the plan root.
	Destructive() bool
	// Describe renders a one-line human summary.
	Describe() string
	Accept(v Visitor)

	sealed()
}

// CreateFile writes Content to Path, creating parent directories.
// An existing file is overwritten.
type CreateFile struct {
	Path    string
	Content string
}

func (CreateFile) Kind() Kind {
	return KindCreateFile
}

func (CreateFile) Destructive() bool {
	return true
}

func (a CreateFile) Accept(v Visitor) {
	v.VisitCreateFile(a)
}

func (CreateFile) sealed() {}

func (a CreateFile) Describe() string {
	return fmt.Sprintf("write %s (%d bytes)", a.Path, len(a.Content))
}

// CreateDirectoryTree creates every listed directory. Directories that
// already exist are not an error.
type CreateDirectoryTree struct {
	Paths []string
}

func (CreateDirectoryTree) Kind() Kind {
	return KindCreateDirectoryTree
}

func (CreateDirectoryTree) Destructive() bool {
	return false
}

func (a CreateDirectoryTree) Accept(v Visitor) {
	v.VisitCreateDirectoryTree(a)
}

func (CreateDirectoryTree) sealed() {}

func (a CreateDirectoryTree) Describe() string {
	return "mkdir " + strings.Join(a.Paths, " ")
}

// RunCommand runs CommandLine through the shell in WorkingDir (relative to
// the plan root when not absolute). A zero Timeout means the executor's
// default applies.
type RunCommand struct {
	CommandLine string
	WorkingDir  string
	Timeout     time.Duration
}

func (RunCommand) Kind() Kind {
	return KindRunCommand
}

func (RunCommand) Destructive() bool {
	return true
}

func (a RunCommand) Accept(v Visitor) {
	v.VisitRunCommand(a)
}

func (RunCommand) sealed() {}

func (a RunCommand) Describe() string {
	if a.WorkingDir == "" || a.WorkingDir == "." {
		return "run `" + a.CommandLine + "`"
	}
	return fmt.Sprintf("run `%s` in %s", a.CommandLine, a.WorkingDir)
}

// GitCommit stages every change under the plan root and commits it.
type GitCommit struct {
	Message string
}

func (GitCommit) Kind() Kind {
	return KindGitCommit
}

func (GitCommit) Destructive() bool {
	return true
}

func (a GitCommit) Accept(v Visitor) {
	v.VisitGitCommit(a)
}

func (GitCommit) sealed() {}

func (a GitCommit) Describe() string {
	return fmt.Sprintf("git commit -m %q", a.Message)
}

// Equal reports whether two actions are the same variant with the same payload.
func Equal(a, b Action) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return SpecOf(a).equal(SpecOf(b))
}
