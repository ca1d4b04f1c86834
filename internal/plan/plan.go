// Package plan defines the immutable execution plan: an ordered list of steps,
// each carrying one action and the indices of the steps it depends on.
package plan

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/autopilot/internal/errors"
)

// Step is one unit of work. Index is the step's position in the plan and its
// stable identifier.
type Step struct {
	Index       int
	Action      Action
	DependsOn   []int
	Description string
}

// Plan is an ordered, validated set of steps. Construct it with New; the
// value must not be modified afterwards.
type Plan struct {
	ID        string
	Goal      string
	Root      string
	Steps     []Step
	CreatedAt time.Time
}

// New validates steps and returns a Plan rooted at root. Step indices are
// assigned from position, dependency lists are sorted and de-duplicated.
//
// Validation rejects:
//   - a step without an action
//   - a dependency that is not strictly earlier than its step
//   - file and directory paths that are absolute or escape the root
//   - empty command lines
func New(goal, root string, steps []Step) (*Plan, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.NewValidationError("plan root is required").WithField("root")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewValidationError("plan root cannot be resolved").
			WithField("root").WithValue(root).WithCause(err)
	}

	normalized := make([]Step, len(steps))
	for i, s := range steps {
		if s.Index != 0 && s.Index != i {
			return nil, errors.NewValidationError("step index must match its position").
				WithField(fmt.Sprintf("steps[%d].index", i)).WithValue(s.Index)
		}
		if s.Action == nil {
			return nil, errors.NewValidationError("step has no action").
				WithField(fmt.Sprintf("steps[%d].action", i))
		}
		if err := validateAction(i, s.Action); err != nil {
			return nil, err
		}

		deps := slices.Clone(s.DependsOn)
		slices.Sort(deps)
		deps = slices.Compact(deps)
		for _, d := range deps {
			if d < 0 || d >= i {
				return nil, errors.NewValidationError("dependency must refer to an earlier step").
					WithField(fmt.Sprintf("steps[%d].depends_on", i)).WithValue(d)
			}
		}

		normalized[i] = Step{
			Index:       i,
			Action:      s.Action,
			DependsOn:   deps,
			Description: s.Description,
		}
	}

	return &Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		Root:      absRoot,
		Steps:     normalized,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type actionValidator struct {
	step int
	err  error
}

func (v *actionValidator) field(name string) string {
	return fmt.Sprintf("steps[%d].%s", v.step, name)
}

func (v *actionValidator) VisitCreateFile(a CreateFile) {
	v.err = validateRelPath(v.field("path"), a.Path)
}

func (v *actionValidator) VisitCreateDirectoryTree(a CreateDirectoryTree) {
	if len(a.Paths) == 0 {
		v.err = errors.NewValidationError("directory tree has no paths").WithField(v.field("paths"))
		return
	}
	for i, p := range a.Paths {
		if err := validateRelPath(v.field(fmt.Sprintf("paths[%d]", i)), p); err != nil {
			v.err = err
			return
		}
	}
}

func (v *actionValidator) VisitRunCommand(a RunCommand) {
	if strings.TrimSpace(a.CommandLine) == "" {
		v.err = errors.NewValidationError("command line is empty").WithField(v.field("command"))
		return
	}
	if a.Timeout < 0 {
		v.err = errors.NewValidationError("timeout cannot be negative").
			WithField(v.field("timeout")).WithValue(a.Timeout)
	}
}

// An empty commit message is accepted here; the executor rejects it and
// recovery substitutes a default.
func (v *actionValidator) VisitGitCommit(GitCommit) {}

func validateAction(step int, a Action) error {
	v := &actionValidator{step: step}
	a.Accept(v)
	return v.err
}

func validateRelPath(field, p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.NewValidationError("path is empty").WithField(field)
	}
	if filepath.IsAbs(p) {
		return errors.NewValidationError("path must be relative to the plan root").
			WithField(field).WithValue(p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.NewValidationError("path escapes the plan root").
			WithField(field).WithValue(p)
	}
	return nil
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// Step returns the step at index i.
func (p *Plan) Step(i int) Step {
	return p.Steps[i]
}

// HasDestructive reports whether any of the given steps carries a
// destructive action.
func (p *Plan) HasDestructive(indices []int) bool {
	for _, i := range indices {
		if p.Steps[i].Action.Destructive() {
			return true
		}
	}
	return false
}

// Summary renders the plan for a confirmation prompt.
func (p *Plan) Summary() string {
	var b strings.Builder
	if p.Goal != "" {
		fmt.Fprintf(&b, "%s\n", p.Goal)
	}
	fmt.Fprintf(&b, "Plan %s: %d step(s) in %s\n", p.ID, len(p.Steps), p.Root)
	for _, s := range p.Steps {
		marker := " "
		if s.Action.Destructive() {
			marker = "!"
		}
		fmt.Fprintf(&b, "  %s [%d] %s", marker, s.Index, s.Action.Describe())
		if len(s.DependsOn) > 0 {
			deps := make([]string, len(s.DependsOn))
			for i, d := range s.DependsOn {
				deps[i] = fmt.Sprint(d)
			}
			fmt.Fprintf(&b, " (after %s)", strings.Join(deps, ", "))
		}
		if s.Description != "" {
			fmt.Fprintf(&b, " - %s", s.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
