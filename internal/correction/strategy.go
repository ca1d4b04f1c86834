package correction

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/autopilot/internal/executor"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// DefaultThreshold is the confidence a pattern must exceed before its
// correction is applied.
const DefaultThreshold = 0.6

// DefaultCommitMessage replaces an empty GitCommit message.
const DefaultCommitMessage = "Auto commit"

const sudoPrefix = "sudo -n "

// Options configures a Strategy.
type Options struct {
	// Threshold is the exclusive lower bound on pattern confidence.
	// Zero selects DefaultThreshold.
	Threshold float64
	// AllowSudo enables privilege escalation for permission failures.
	AllowSudo bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, AllowSudo: true}
}

// Correction is a revised action proposed for a failed attempt.
type Correction struct {
	Action     plan.Action
	Pattern    Pattern
	Confidence float64
	// Note describes the rewrite for the audit ledger.
	Note string
}

// Strategy proposes corrections. It is a pure function of its inputs and
// safe for concurrent use.
type Strategy struct {
	threshold float64
	allowSudo bool
}

// NewStrategy creates a Strategy.
func NewStrategy(opts Options) *Strategy {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Strategy{threshold: opts.Threshold, allowSudo: opts.AllowSudo}
}

// Threshold returns the confidence bound in effect.
func (s *Strategy) Threshold() float64 {
	return s.threshold
}

// Correct classifies sig and proposes a revised action for a. It returns
// false when the failure is unrecognized, when the pattern's confidence
// does not exceed the threshold, or when no rewrite applies to this kind
// of action. A proposed action is never equal to a.
func (s *Strategy) Correct(a plan.Action, sig executor.ErrorSignature) (Correction, bool) {
	pattern := Classify(sig)
	confidence := pattern.Confidence()
	if !pattern.Recognized() || confidence <= s.threshold || a == nil {
		return Correction{Pattern: pattern, Confidence: confidence}, false
	}

	v := &corrector{strategy: s, pattern: pattern, sig: sig}
	a.Accept(v)
	if v.action == nil || plan.Equal(v.action, a) {
		return Correction{Pattern: pattern, Confidence: confidence}, false
	}
	return Correction{
		Action:     v.action,
		Pattern:    pattern,
		Confidence: confidence,
		Note:       v.note,
	}, true
}

// corrector produces a rewritten action for one failure.
type corrector struct {
	strategy *Strategy
	pattern  Pattern
	sig      executor.ErrorSignature

	action plan.Action
	note   string
}

func (c *corrector) VisitCreateFile(plan.CreateFile) {}

func (c *corrector) VisitCreateDirectoryTree(plan.CreateDirectoryTree) {}

func (c *corrector) VisitGitCommit(a plan.GitCommit) {
	if c.pattern == PatternInvalidArgument && strings.TrimSpace(a.Message) == "" {
		c.action = plan.GitCommit{Message: DefaultCommitMessage}
		c.note = "substituted default commit message"
	}
}

func (c *corrector) VisitRunCommand(a plan.RunCommand) {
	switch c.pattern {
	case PatternCommandNotFound:
		c.fixCommandName(a)
	case PatternPermissionDenied:
		c.escalate(a)
	case PatternMissingDirectory:
		c.createMissingDir(a)
	case PatternInvalidArgument:
		c.dropRejectedOption(a)
	}
}

func (c *corrector) fixCommandName(a plan.RunCommand) {
	name := missingCommand(c.sig.Message)
	if name == "" {
		name = firstWord(a.CommandLine)
	}
	fixed, ok := SuggestCommand(name)
	if !ok {
		return
	}
	line, ok := replaceWord(a.CommandLine, name, fixed)
	if !ok {
		return
	}
	a.CommandLine = line
	c.action = a
	c.note = fmt.Sprintf("replaced %q with %q", name, fixed)
}

func (c *corrector) escalate(a plan.RunCommand) {
	if !c.strategy.allowSudo || firstWord(a.CommandLine) == "sudo" {
		return
	}
	a.CommandLine = sudoPrefix + strings.TrimSpace(a.CommandLine)
	c.action = a
	c.note = "retried with sudo"
}

func (c *corrector) createMissingDir(a plan.RunCommand) {
	if dir, ok := strings.CutPrefix(c.sig.Message, executor.MissingWorkingDirPrefix); ok {
		q := shellQuote(dir)
		a.CommandLine = fmt.Sprintf("mkdir -p %s && cd %s && %s", q, q, a.CommandLine)
		a.WorkingDir = ""
		c.action = a
		c.note = "created working directory " + dir
		return
	}

	missing := missingPath(c.sig.Message)
	if missing == "" {
		return
	}
	dir := filepath.Dir(missing)
	if dir == "." || dir == string(filepath.Separator) {
		return
	}
	prefix := "mkdir -p " + shellQuote(dir) + " && "
	if strings.HasPrefix(a.CommandLine, prefix) {
		return
	}
	a.CommandLine = prefix + a.CommandLine
	c.action = a
	c.note = "created parent directory " + dir
}

func (c *corrector) dropRejectedOption(a plan.RunCommand) {
	opt := rejectedOption(c.sig.Message)
	if opt == "" {
		return
	}
	line, ok := replaceWord(a.CommandLine, opt, "")
	if !ok {
		return
	}
	a.CommandLine = strings.Join(strings.Fields(line), " ")
	c.action = a
	c.note = "removed unsupported option " + opt
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// replaceWord replaces the first whole-word occurrence of word in line.
// Words are delimited by whitespace and shell command separators.
func replaceWord(line, word, with string) (string, bool) {
	if word == "" {
		return line, false
	}
	for from := 0; from < len(line); {
		i := strings.Index(line[from:], word)
		if i < 0 {
			return line, false
		}
		start := from + i
		end := start + len(word)
		if isBoundary(line, start-1) && isBoundary(line, end) {
			return line[:start] + with + line[end:], true
		}
		from = start + 1
	}
	return line, false
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	return strings.IndexByte(" \t\n;&|()", s[i]) >= 0
}

// shellQuote single-quotes s for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
