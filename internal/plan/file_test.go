package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/autopilot/internal/errors"
)

const samplePlan = `
goal: scaffold
root: out
steps:
  - action: create_directory_tree
    paths: [a/]
  - action: create_file
    path: a/x.txt
    content: "1"
    depends_on: [0]
  - action: run_command
    command: ls a
    working_dir: .
    timeout: 5s
    depends_on: [1]
    description: list
  - action: git_commit
    message: initial
    depends_on: [2]
`

func TestParse(t *testing.T) {
	base := t.TempDir()

	p, err := Parse([]byte(samplePlan), base)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if p.Root != filepath.Join(base, "out") {
		t.Errorf("Root = %q", p.Root)
	}
	if p.Goal != "scaffold" || p.Len() != 4 {
		t.Fatalf("unexpected plan: goal=%q len=%d", p.Goal, p.Len())
	}

	want := []Action{
		CreateDirectoryTree{Paths: []string{"a/"}},
		CreateFile{Path: "a/x.txt", Content: "1"},
		RunCommand{CommandLine: "ls a", WorkingDir: ".", Timeout: 5 * time.Second},
		GitCommit{Message: "initial"},
	}
	for i, w := range want {
		if !Equal(p.Steps[i].Action, w) {
			t.Errorf("step %d action = %#v, want %#v", i, p.Steps[i].Action, w)
		}
	}
	if p.Steps[2].Description != "list" {
		t.Errorf("description lost: %q", p.Steps[2].Description)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{"bad yaml", "steps: [", ""},
		{"unknown action", "root: .\nsteps:\n  - action: teleport\n", "steps[0].action"},
		{"missing action", "root: .\nsteps:\n  - path: x\n", "steps[0].action"},
		{"bad timeout", "root: .\nsteps:\n  - action: run_command\n    command: ls\n    timeout: soon\n", "steps[0].timeout"},
		{"forward dep", "root: .\nsteps:\n  - action: git_commit\n    depends_on: [3]\n", "steps[0].depends_on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), t.TempDir())
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Parse() error = %v, want ValidationError", err)
			}
			if tt.wantField != "" && ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestLoadAndEncode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	again, err := Parse(data, "/unused")
	if err != nil {
		t.Fatalf("re-Parse() error = %v", err)
	}
	if again.Root != p.Root || again.Len() != p.Len() {
		t.Fatalf("round trip changed plan: %+v", again)
	}
	for i := range p.Steps {
		if !Equal(p.Steps[i].Action, again.Steps[i].Action) {
			t.Errorf("step %d differs after round trip", i)
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, errors.ErrPlanNotFound) {
		t.Errorf("Load() of missing file error = %v, want ErrPlanNotFound", err)
	}
}

func TestActionSpec_JSON(t *testing.T) {
	spec := SpecOf(RunCommand{CommandLine: "make", WorkingDir: "src", Timeout: time.Minute})
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"action":"run_command","command":"make","working_dir":"src","timeout":"1m0s"}` {
		t.Errorf("json = %s", data)
	}

	var decoded ActionSpec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	a, err := decoded.Action()
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(a, RunCommand{CommandLine: "make", WorkingDir: "src", Timeout: time.Minute}) {
		t.Errorf("decoded action = %#v", a)
	}
}
