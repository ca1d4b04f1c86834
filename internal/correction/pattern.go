// Package correction maps a classified step failure to a revised action.
//
// Classification uses a fixed table of failure patterns. Each pattern
// carries a confidence score; a Strategy only proposes a correction when
// the pattern is recognized and its confidence clears the configured
// threshold. Nothing in this package executes anything.
package correction

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/executor"
)

// Pattern is a recognized class of step failure.
type Pattern string

const (
	PatternCommandNotFound  Pattern = "command_not_found"
	PatternPermissionDenied Pattern = "permission_denied"
	PatternMissingDirectory Pattern = "missing_directory"
	PatternInvalidArgument  Pattern = "invalid_argument"
	PatternSyntaxError      Pattern = "syntax_error"
	PatternUnrecognized     Pattern = "unrecognized"
)

// Patterns lists the recognized patterns in classification order.
var Patterns = []Pattern{
	PatternCommandNotFound,
	PatternPermissionDenied,
	PatternMissingDirectory,
	PatternInvalidArgument,
	PatternSyntaxError,
}

var confidences = map[Pattern]float64{
	PatternPermissionDenied: 0.9,
	PatternMissingDirectory: 0.8,
	PatternCommandNotFound:  0.7,
	PatternInvalidArgument:  0.65,
	PatternSyntaxError:      0.4,
}

// Recognized reports whether p is one of the classified patterns.
func (p Pattern) Recognized() bool {
	_, ok := confidences[p]
	return ok
}

// Confidence is the score a correction for p is given. Unrecognized
// failures score zero.
func (p Pattern) Confidence() float64 {
	return confidences[p]
}

func (p Pattern) String() string {
	return string(p)
}

// Shell exit statuses with a fixed meaning.
const (
	exitNotExecutable = 126
	exitNotFound      = 127
)

var (
	notFoundMarkers = []string{
		"command not found",
		": not found",
		"is not recognized as an internal or external command",
	}
	permissionMarkers = []string{
		"permission denied",
		"operation not permitted",
		"access denied",
	}
	missingDirMarkers = []string{
		"no such file or directory",
		"directory nonexistent",
		"can't cd to",
	}
	invalidArgMarkers = []string{
		"invalid argument",
		"invalid option",
		"unrecognized option",
		"unknown option",
		"illegal option",
	}
	syntaxMarkers = []string{
		"syntax error",
		"unexpected token",
		"unexpected end of file",
		"invalid syntax",
	}
)

// Classify maps a failure signature onto a Pattern. Timeouts are never
// classified: a hung command is not something a rewrite can fix.
func Classify(sig executor.ErrorSignature) Pattern {
	if sig.TimedOut {
		return PatternUnrecognized
	}
	msg := strings.ToLower(sig.Message)

	switch {
	case strings.HasPrefix(sig.Message, executor.MissingWorkingDirPrefix):
		return PatternMissingDirectory
	case sig.Message == executor.EmptyCommitMessage:
		return PatternInvalidArgument
	case sig.ExitCode == exitNotFound || containsAny(msg, notFoundMarkers):
		return PatternCommandNotFound
	case sig.Category == errors.CategoryPermission ||
		sig.ExitCode == exitNotExecutable ||
		containsAny(msg, permissionMarkers):
		return PatternPermissionDenied
	case containsAny(msg, missingDirMarkers):
		return PatternMissingDirectory
	case containsAny(msg, invalidArgMarkers):
		return PatternInvalidArgument
	case containsAny(msg, syntaxMarkers):
		return PatternSyntaxError
	}
	return PatternUnrecognized
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

var (
	// "sh: 1: gti: not found", "bash: gti: command not found"
	missingCommandRe = regexp.MustCompile(`([\w.+-]+): (?:command )?not found`)

	// "sh: 1: cannot create out/x.txt: Directory nonexistent",
	// "touch: cannot touch 'a/b': No such file or directory"
	missingPathRe = regexp.MustCompile(`(?i)['"‘]?([^'"’\s:]+)['"’]?: (?:no such file or directory|directory nonexistent)`)

	// "unrecognized option '--fast'", "invalid option -- 'x'"
	longOptionRe  = regexp.MustCompile(`(?i)(?:unrecognized|unknown|invalid|illegal) option[: ]+['"‘]?(--?[\w][\w-]*)`)
	shortOptionRe = regexp.MustCompile(`(?i)(?:invalid|illegal) option -- ['"‘]?(\w)`)
)

// missingCommand extracts the name of a command the shell could not find.
func missingCommand(msg string) string {
	if m := missingCommandRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

// missingPath extracts the path named by a missing-file message.
func missingPath(msg string) string {
	if m := missingPathRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

// rejectedOption extracts the command-line option a tool refused.
func rejectedOption(msg string) string {
	if m := longOptionRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := shortOptionRe.FindStringSubmatch(msg); m != nil {
		return "-" + m[1]
	}
	return ""
}
