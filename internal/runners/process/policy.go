package process

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Policy rejects commands that must never run.
type Policy struct {
	// BlockedCommands are executable names that are refused.
	BlockedCommands []string

	// BlockedPatterns are regular expressions matched against the full
	// command line.
	BlockedPatterns []string

	// MaxCommandLength limits the command line length; zero disables it.
	MaxCommandLength int
}

// DefaultPolicy blocks privilege escalation, machine shutdown and disk
// formatting.
func DefaultPolicy() Policy {
	return Policy{
		BlockedCommands: []string{
			"sudo", "su", "doas", "pkexec",
			"shutdown", "reboot", "halt", "poweroff",
			"mkfs", "fdisk", "format", "dd",
		},
		BlockedPatterns: []string{
			`rm\s+(-[rRf]+\s+)+[/~]\s*$`,
			`>\s*/dev/sd`,
		},
		MaxCommandLength: 8192,
	}
}

// PolicyError reports a refused command.
type PolicyError struct {
	Command string
	Reason  string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("command refused (%s): %s", e.Reason, truncate(e.Command, 80))
}

type compiledPolicy struct {
	blocked  map[string]bool
	patterns []*regexp.Regexp
	maxLen   int
}

func (p Policy) compile() (*compiledPolicy, error) {
	cp := &compiledPolicy{blocked: make(map[string]bool), maxLen: p.MaxCommandLength}
	for _, c := range p.BlockedCommands {
		cp.blocked[c] = true
	}
	for _, expr := range p.BlockedPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("blocked pattern %q: %w", expr, err)
		}
		cp.patterns = append(cp.patterns, re)
	}
	return cp, nil
}

// check validates a resolved command line.
func (cp *compiledPolicy) check(line string) error {
	if cp.maxLen > 0 && len(line) > cp.maxLen {
		return &PolicyError{Command: line, Reason: "too long"}
	}
	for _, word := range commandWords(line) {
		if cp.blocked[filepath.Base(word)] {
			return &PolicyError{Command: line, Reason: "blocked command " + filepath.Base(word)}
		}
	}
	for _, re := range cp.patterns {
		if re.MatchString(line) {
			return &PolicyError{Command: line, Reason: "blocked pattern"}
		}
	}
	return nil
}

// commandWords returns the first word of every pipeline or list element.
func commandWords(line string) []string {
	split := func(r rune) bool {
		return r == ';' || r == '|' || r == '&' || r == '\n'
	}
	var words []string
	for _, part := range strings.FieldsFunc(line, split) {
		if fields := strings.Fields(part); len(fields) > 0 {
			words = append(words, fields[0])
		}
	}
	return words
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
