package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/testutil"
)

// executeCommand runs the root command with args and returns captured output.
// Flags are reset first because cobra keeps their values between executions.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setupTestEnvironment isolates config, data, and log directories under
// temporary directories.
func setupTestEnvironment(t *testing.T) (home string) {
	t.Helper()

	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	resetViper()
	t.Cleanup(viper.Reset)
	return home
}

// resetViper drops in-process overrides such as those left by config set,
// as a fresh process would start.
func resetViper() {
	viper.Reset()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

// writePlan writes a plan file whose root is <dir>/out.
func writePlan(t *testing.T, dir, steps string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.yaml")
	testutil.WriteFiles(t, dir, map[string]string{
		"plan.yaml": "goal: test plan\nroot: out\nsteps:\n" + steps,
	})
	return path
}

const scaffoldSteps = `  - action: create_directory_tree
    paths: [a]
  - action: create_file
    path: a/x.txt
    content: hello
    depends_on: [0]
  - action: create_file
    path: a/y.txt
    content: world
    depends_on: [0]
  - action: run_command
    command: cat x.txt y.txt
    working_dir: a
    depends_on: [1, 2]
`

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "autopilot" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "autopilot")
	}

	expectedCmds := []string{"run", "validate", "schedule", "snapshot", "ledger", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	setupTestEnvironment(t)
	dir := t.TempDir()

	t.Run("valid plan", func(t *testing.T) {
		path := writePlan(t, dir, scaffoldSteps)
		output, err := executeCommand(t, "validate", path)
		if err != nil {
			t.Fatalf("validate failed: %v\n%s", err, output)
		}
		if !strings.Contains(output, "Plan is valid: 4 step(s) in 3 wave(s)") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		path := writePlan(t, dir, "  - action: create_file\n    path: /etc/passwd\n    content: x\n")
		if _, err := executeCommand(t, "validate", path); err == nil {
			t.Error("expected validation error for absolute path")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := executeCommand(t, "validate", filepath.Join(dir, "missing.yaml"))
		if !errors.Is(err, errors.ErrPlanNotFound) {
			t.Errorf("expected ErrPlanNotFound for missing plan file, got %v", err)
		}
	})
}

func TestScheduleCommand_JSON(t *testing.T) {
	setupTestEnvironment(t)
	path := writePlan(t, t.TempDir(), scaffoldSteps)

	output, err := executeCommand(t, "schedule", "--json", path)
	if err != nil {
		t.Fatalf("schedule failed: %v\n%s", err, output)
	}

	var got scheduleOutput
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	wantSteps := [][]int{{0}, {1, 2}, {3}}
	if len(got.Waves) != len(wantSteps) {
		t.Fatalf("got %d waves, want %d", len(got.Waves), len(wantSteps))
	}
	for i, w := range got.Waves {
		if len(w.Steps) != len(wantSteps[i]) {
			t.Errorf("wave %d steps = %v, want %v", i, w.Steps, wantSteps[i])
		}
		// Only creating a directory tree leaves nothing to roll back
		if want := i > 0; w.Destructive != want {
			t.Errorf("wave %d destructive = %v, want %v", i, w.Destructive, want)
		}
	}
	if got.Stats.WidestWave != 2 {
		t.Errorf("WidestWave = %d, want 2", got.Stats.WidestWave)
	}
}

func TestScheduleCommand_Text(t *testing.T) {
	setupTestEnvironment(t)
	path := writePlan(t, t.TempDir(), scaffoldSteps)

	output, err := executeCommand(t, "schedule", path)
	if err != nil {
		t.Fatalf("schedule failed: %v\n%s", err, output)
	}
	for _, want := range []string{"Wave 0", "Wave 1", "Wave 2", "widest wave 2"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunCommand_RequiresTerminalOrYes(t *testing.T) {
	setupTestEnvironment(t)
	path := writePlan(t, t.TempDir(), scaffoldSteps)

	_, err := executeCommand(t, "run", path)
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("expected an error asking for --yes, got %v", err)
	}
}

func TestRunCommand_Completes(t *testing.T) {
	setupTestEnvironment(t)
	dir := t.TempDir()
	path := writePlan(t, dir, scaffoldSteps)

	output, err := executeCommand(t, "run", "--yes", "--workers", "2", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "completed") {
		t.Errorf("expected completed run:\n%s", output)
	}
	if got := testutil.ReadFile(t, filepath.Join(dir, "out"), "a/x.txt"); got != "hello" {
		t.Errorf("a/x.txt = %q, want %q", got, "hello")
	}

	// The run is recorded in the ledger
	output, err = executeCommand(t, "ledger", "--json")
	if err != nil {
		t.Fatalf("ledger failed: %v\n%s", err, output)
	}
	var runs []struct {
		PlanID    string `json:"plan_id"`
		State     string `json:"state"`
		Steps     int    `json:"steps"`
		Succeeded int    `json:"succeeded"`
	}
	if err := json.Unmarshal([]byte(output), &runs); err != nil {
		t.Fatalf("ledger output is not JSON: %v\n%s", err, output)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].State != "completed" || runs[0].Steps != 4 || runs[0].Succeeded != 4 {
		t.Errorf("unexpected run record: %+v", runs[0])
	}

	output, err = executeCommand(t, "ledger", "show", runs[0].PlanID)
	if err != nil {
		t.Fatalf("ledger show failed: %v\n%s", err, output)
	}
	if strings.Count(output, "attempt 1") != 4 {
		t.Errorf("expected one record per step:\n%s", output)
	}

	// One snapshot per destructive wave
	output, err = executeCommand(t, "snapshot", "list")
	if err != nil {
		t.Fatalf("snapshot list failed: %v\n%s", err, output)
	}
	if n := len(snapshotIDs(output)); n != 2 {
		t.Errorf("got %d snapshots, want 2:\n%s", n, output)
	}
}

func TestRunCommand_FailureRollsBack(t *testing.T) {
	setupTestEnvironment(t)
	dir := t.TempDir()
	path := writePlan(t, dir, `  - action: create_file
    path: keep.txt
    content: kept
  - action: run_command
    command: echo partial > junk.txt; exit 3
    depends_on: [0]
`)

	output, err := executeCommand(t, "run", "--yes", "--auto-rollback", path)
	if err == nil {
		t.Fatalf("expected an error for a rolled back run:\n%s", output)
	}
	var stepErr *errors.StepError
	if !errors.As(err, &stepErr) || stepErr.StepIndex != 1 || stepErr.ExitCode != 3 {
		t.Errorf("expected the failed step's error, got %v", err)
	}
	if !errors.Is(err, errors.ErrStepFailed) {
		t.Errorf("run error should match ErrStepFailed: %v", err)
	}
	if !strings.Contains(output, "rolled_back") {
		t.Errorf("expected rolled_back state:\n%s", output)
	}

	root := filepath.Join(dir, "out")
	if got := testutil.ReadFile(t, root, "keep.txt"); got != "kept" {
		t.Errorf("keep.txt = %q, want %q", got, "kept")
	}
	if _, err := os.Stat(filepath.Join(root, "junk.txt")); !os.IsNotExist(err) {
		t.Errorf("junk.txt should have been removed by the rollback, stat err = %v", err)
	}
}

func TestRunCommand_NoSnapshotAborts(t *testing.T) {
	setupTestEnvironment(t)
	path := writePlan(t, t.TempDir(), "  - action: run_command\n    command: exit 3\n")

	output, err := executeCommand(t, "run", "--yes", "--no-snapshot", path)
	if err == nil {
		t.Fatalf("expected an error for a failed run:\n%s", output)
	}
	if !strings.Contains(output, "no snapshot to roll back to") {
		t.Errorf("expected abort reason:\n%s", output)
	}
}

var snapshotIDRe = regexp.MustCompile(`snapshot-\d{8}T\d{6}Z-\d+`)

func snapshotIDs(output string) []string {
	return snapshotIDRe.FindAllString(output, -1)
}

func TestSnapshotCommands(t *testing.T) {
	setupTestEnvironment(t)
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"a.txt": "one", "b/c.txt": "two"})

	output, err := executeCommand(t, "snapshot", "create", "--label", "before", root)
	if err != nil {
		t.Fatalf("snapshot create failed: %v\n%s", err, output)
	}
	ids := snapshotIDs(output)
	if len(ids) != 1 {
		t.Fatalf("expected a snapshot id in output:\n%s", output)
	}
	id := ids[0]

	output, err = executeCommand(t, "snapshot", "list")
	if err != nil {
		t.Fatalf("snapshot list failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, id) || !strings.Contains(output, "(before)") {
		t.Errorf("list missing snapshot:\n%s", output)
	}

	testutil.WriteFiles(t, root, map[string]string{"a.txt": "changed", "new.txt": "new"})

	output, err = executeCommand(t, "snapshot", "diff", id)
	if err != nil {
		t.Fatalf("snapshot diff failed: %v\n%s", err, output)
	}
	for _, want := range []string{"+ new.txt", "~ a.txt"} {
		if !strings.Contains(output, want) {
			t.Errorf("diff missing %q:\n%s", want, output)
		}
	}

	if output, err = executeCommand(t, "snapshot", "restore", id); err != nil {
		t.Fatalf("snapshot restore failed: %v\n%s", err, output)
	}
	if got := testutil.ReadFile(t, root, "a.txt"); got != "one" {
		t.Errorf("a.txt = %q after restore, want %q", got, "one")
	}
	if _, err := os.Stat(filepath.Join(root, "new.txt")); !os.IsNotExist(err) {
		t.Errorf("new.txt should be gone after restore")
	}

	if output, err = executeCommand(t, "snapshot", "delete", id); err != nil {
		t.Fatalf("snapshot delete failed: %v\n%s", err, output)
	}
	output, err = executeCommand(t, "snapshot", "gc")
	if err != nil {
		t.Fatalf("snapshot gc failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Removed 2 blob(s)") {
		t.Errorf("expected both blobs reclaimed:\n%s", output)
	}

	if _, err := executeCommand(t, "snapshot", "restore", id); err == nil {
		t.Error("restoring a deleted snapshot should fail")
	}
}

func TestConfigCommands(t *testing.T) {
	home := setupTestEnvironment(t)
	configFile := filepath.Join(home, ".config", "autopilot", "config.yaml")

	output, err := executeCommand(t, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v\n%s", err, output)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("config file is not valid YAML: %v", err)
	}
	if _, ok := parsed["recovery"]; !ok {
		t.Errorf("config file missing recovery section:\n%s", data)
	}
	if !strings.Contains(string(data), "# Retries and automatic corrections") {
		t.Errorf("config file missing section comments:\n%s", data)
	}

	if _, err := executeCommand(t, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	output, err = executeCommand(t, "config", "set", "recovery.max_attempts", "5")
	if err != nil {
		t.Fatalf("config set failed: %v\n%s", err, output)
	}
	output, err = executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "max_attempts: 5") {
		t.Errorf("config show should reflect the saved value:\n%s", output)
	}

	resetViper()
	output, err = executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "max_attempts: 5") {
		t.Errorf("config show should read the saved file:\n%s", output)
	}

	t.Setenv("AUTOPILOT_RECOVERY_MAX_ATTEMPTS", "7")
	resetViper()
	output, err = executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "max_attempts: 7") {
		t.Errorf("environment should override the config file:\n%s", output)
	}
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
		noHint   string
	}{
		{
			name:     "transient step failure",
			err:      errors.Wrap(errors.NewStepError(errors.CategoryCommand, "exit status 1", nil), "plan ended in state rolled_back"),
			wantHint: "running the plan again",
			noHint:   "logging.enabled",
		},
		{
			name:     "internal error",
			err:      errors.Wrap(errors.ErrSnapshotCorrupted, "restore"),
			wantHint: "logging.enabled",
			noHint:   "running the plan again",
		},
		{
			name:   "user-facing validation error",
			err:    errors.NewValidationError("path must be relative").WithField("steps[0].path"),
			noHint: "logging.enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			out := buf.String()
			if !strings.Contains(out, "Error: "+tt.err.Error()) {
				t.Errorf("missing error message:\n%s", out)
			}
			if tt.wantHint != "" && !strings.Contains(out, tt.wantHint) {
				t.Errorf("expected hint %q:\n%s", tt.wantHint, out)
			}
			if strings.Contains(out, tt.noHint) {
				t.Errorf("unexpected hint %q:\n%s", tt.noHint, out)
			}
		})
	}
}

func TestConfigSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "nope.key", "1"}},
		{"section key", []string{"config", "set", "recovery", "1"}},
		{"bad integer", []string{"config", "set", "runloop.workers", "many"}},
		{"bad bool", []string{"config", "set", "ledger.enabled", "maybe"}},
		{"fails validation", []string{"config", "set", "recovery.max_attempts", "99"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := setupTestEnvironment(t)
			if _, err := executeCommand(t, tt.args...); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
			if _, err := os.Stat(filepath.Join(home, ".config", "autopilot", "config.yaml")); !os.IsNotExist(err) {
				t.Error("a rejected value must not be written")
			}
		})
	}
}
