package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/autopilot/internal/errors"
)

// ActionSpec is the serialized form of an Action, used in plan files and
// in persisted correction records.
type ActionSpec struct {
	Type       Kind     `yaml:"action" json:"action"`
	Path       string   `yaml:"path,omitempty" json:"path,omitempty"`
	Content    string   `yaml:"content,omitempty" json:"content,omitempty"`
	Paths      []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Command    string   `yaml:"command,omitempty" json:"command,omitempty"`
	WorkingDir string   `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Timeout    string   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Message    string   `yaml:"message,omitempty" json:"message,omitempty"`
}

// StepSpec is one entry of a plan file's steps list.
type StepSpec struct {
	ActionSpec  `yaml:",inline"`
	DependsOn   []int  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// File is the on-disk YAML representation of a plan.
//
//	goal: scaffold project
//	root: ./out
//	steps:
//	  - action: create_directory_tree
//	    paths: [a]
//	  - action: create_file
//	    path: a/x.txt
//	    content: "1"
//	    depends_on: [0]
type File struct {
	Goal  string     `yaml:"goal,omitempty"`
	Root  string     `yaml:"root"`
	Steps []StepSpec `yaml:"steps"`
}

type specBuilder struct {
	spec ActionSpec
}

func (b *specBuilder) VisitCreateFile(a CreateFile) {
	b.spec = ActionSpec{Type: KindCreateFile, Path: a.Path, Content: a.Content}
}

func (b *specBuilder) VisitCreateDirectoryTree(a CreateDirectoryTree) {
	b.spec = ActionSpec{Type: KindCreateDirectoryTree, Paths: slices.Clone(a.Paths)}
}

func (b *specBuilder) VisitRunCommand(a RunCommand) {
	b.spec = ActionSpec{Type: KindRunCommand, Command: a.CommandLine, WorkingDir: a.WorkingDir}
	if a.Timeout > 0 {
		b.spec.Timeout = a.Timeout.String()
	}
}

func (b *specBuilder) VisitGitCommit(a GitCommit) {
	b.spec = ActionSpec{Type: KindGitCommit, Message: a.Message}
}

// SpecOf returns the serialized form of a.
func SpecOf(a Action) ActionSpec {
	var b specBuilder
	a.Accept(&b)
	return b.spec
}

func (s ActionSpec) equal(o ActionSpec) bool {
	return s.Type == o.Type &&
		s.Path == o.Path &&
		s.Content == o.Content &&
		slices.Equal(s.Paths, o.Paths) &&
		s.Command == o.Command &&
		s.WorkingDir == o.WorkingDir &&
		s.Timeout == o.Timeout &&
		s.Message == o.Message
}

// Action converts the serialized form back into an Action.
func (s ActionSpec) Action() (Action, error) {
	switch s.Type {
	case KindCreateFile:
		return CreateFile{Path: s.Path, Content: s.Content}, nil
	case KindCreateDirectoryTree:
		return CreateDirectoryTree{Paths: slices.Clone(s.Paths)}, nil
	case KindRunCommand:
		var timeout time.Duration
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, errors.NewValidationError("invalid timeout").
					WithField("timeout").WithValue(s.Timeout).WithCause(err)
			}
			timeout = d
		}
		return RunCommand{CommandLine: s.Command, WorkingDir: s.WorkingDir, Timeout: timeout}, nil
	case KindGitCommit:
		return GitCommit{Message: s.Message}, nil
	case "":
		return nil, errors.NewValidationError("action type is required").WithField("action")
	default:
		return nil, errors.NewValidationError("unknown action type").
			WithField("action").WithValue(string(s.Type))
	}
}

// Parse decodes a YAML plan file. A relative root is resolved against
// baseDir.
func Parse(data []byte, baseDir string) (*Plan, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewValidationError("plan file is not valid YAML").WithCause(err)
	}

	steps := make([]Step, len(f.Steps))
	for i, ss := range f.Steps {
		a, err := ss.ActionSpec.Action()
		if err != nil {
			var ve *errors.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("steps[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		steps[i] = Step{Index: i, Action: a, DependsOn: ss.DependsOn, Description: ss.Description}
	}

	root := f.Root
	if root != "" && !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}
	return New(f.Goal, root, steps)
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(errors.ErrPlanNotFound, "read plan %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read plan %s", path)
	}
	return Parse(data, filepath.Dir(path))
}

// Encode renders p as a plan file.
func (p *Plan) Encode() ([]byte, error) {
	f := File{Goal: p.Goal, Root: p.Root, Steps: make([]StepSpec, len(p.Steps))}
	for i, s := range p.Steps {
		f.Steps[i] = StepSpec{
			ActionSpec:  SpecOf(s.Action),
			DependsOn:   s.DependsOn,
			Description: s.Description,
		}
	}
	return yaml.Marshal(f)
}
