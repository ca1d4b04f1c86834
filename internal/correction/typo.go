package correction

import "slices"

// typos maps common misspellings to the intended command.
var typos = map[string]string{
	"pyhton":  "python",
	"pytohn":  "python",
	"pyton":   "python",
	"node.js": "node",
	"nodejs":  "node",
	"gti":     "git",
	"clare":   "clear",
	"claer":   "clear",
	"cd..":    "cd ..",
	"sl":      "ls",
	"les":     "less",
	"grpe":    "grep",
	"gerp":    "grep",
	"maek":    "make",
	"mkae":    "make",
}

// commonCommands is searched, in order, for a near match when a command
// is not in the typo table.
var commonCommands = []string{
	"ls", "cd", "pwd", "cat", "grep", "find", "echo", "mkdir", "rmdir",
	"cp", "mv", "rm", "touch", "chmod", "chown", "ps", "kill", "top",
	"git", "python", "node", "npm", "pip", "make", "gcc", "java",
}

// maxTypoDistance is the largest number of differing characters accepted
// between a same-length command and a common command.
const maxTypoDistance = 2

// SuggestCommand returns the command name most likely meant by name, or
// false if nothing is close enough.
func SuggestCommand(name string) (string, bool) {
	if fixed, ok := typos[name]; ok {
		return fixed, true
	}
	if slices.Contains(commonCommands, name) {
		return "", false
	}
	for _, c := range commonCommands {
		if d, ok := hamming(name, c); ok && d > 0 && d <= maxTypoDistance {
			return c, true
		}
	}
	return "", false
}

// hamming counts differing bytes between equal-length strings.
func hamming(a, b string) (int, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d, true
}
