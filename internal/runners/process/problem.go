package process

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Severity of a reported problem.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity maps compiler wording onto a Severity. Unknown words are
// errors.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "warning", "warn":
		return SeverityWarning
	case "info", "note":
		return SeverityInfo
	default:
		return SeverityError
	}
}

// Problem is a diagnostic recognized in command output.
type Problem struct {
	File     string
	Line     int
	Column   int
	Severity Severity
	Code     string
	Message  string
	Source   string
}

func (p Problem) String() string {
	loc := p.File
	if p.Line > 0 {
		loc += ":" + strconv.Itoa(p.Line)
		if p.Column > 0 {
			loc += ":" + strconv.Itoa(p.Column)
		}
	}
	return fmt.Sprintf("%s: %s: %s", loc, p.Severity, p.Message)
}

// Pattern extracts a problem from one line. The int fields are regexp
// group numbers; zero means the field is not captured.
type Pattern struct {
	Regexp   string
	File     int
	Line     int
	Column   int
	Severity int
	Code     int
	Message  int

	// Default is the severity used when Severity is not captured.
	Default Severity
}

// MatcherDef defines a named problem matcher.
type MatcherDef struct {
	Name     string
	Owner    string
	Patterns []Pattern
}

// Matcher is a compiled MatcherDef.
type Matcher struct {
	owner    string
	patterns []compiledPattern
}

type compiledPattern struct {
	re *regexp.Regexp
	Pattern
}

// Match returns the problem reported by line, trying patterns in order.
func (m *Matcher) Match(line string) (Problem, bool) {
	for _, p := range m.patterns {
		groups := p.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		text := func(i int) string {
			if i <= 0 || i >= len(groups) {
				return ""
			}
			return groups[i]
		}
		number := func(i int) int {
			n, _ := strconv.Atoi(text(i))
			return n
		}

		severity := p.Default
		if p.Severity > 0 {
			severity = ParseSeverity(text(p.Severity))
		}
		if severity == "" {
			severity = SeverityError
		}
		return Problem{
			File:     text(p.File),
			Line:     number(p.Line),
			Column:   number(p.Column),
			Severity: severity,
			Code:     text(p.Code),
			Message:  text(p.Message),
			Source:   m.owner,
		}, true
	}
	return Problem{}, false
}

// Matchers is a registry of named matchers. NewMatchers preloads the
// built-in ones ($go, $gcc, $tsc, $eslint-compact, $pylint, $rustc,
// $generic).
type Matchers struct {
	mu       sync.RWMutex
	matchers map[string]*Matcher
}

// NewMatchers creates a registry holding the built-in matchers.
func NewMatchers() *Matchers {
	ms := &Matchers{matchers: make(map[string]*Matcher)}
	for _, def := range builtinMatchers {
		if err := ms.Register(def); err != nil {
			panic(err)
		}
	}
	return ms
}

// Register compiles def and adds it, replacing a matcher of the same name.
func (ms *Matchers) Register(def MatcherDef) error {
	m := &Matcher{owner: def.Owner}
	for _, p := range def.Patterns {
		re, err := regexp.Compile(p.Regexp)
		if err != nil {
			return fmt.Errorf("problem matcher %s: %w", def.Name, err)
		}
		m.patterns = append(m.patterns, compiledPattern{re: re, Pattern: p})
	}

	ms.mu.Lock()
	ms.matchers[def.Name] = m
	ms.mu.Unlock()
	return nil
}

// Get returns the matcher registered under name.
func (ms *Matchers) Get(name string) (*Matcher, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.matchers[name]
	return m, ok
}

// Names returns the registered matcher names, sorted.
func (ms *Matchers) Names() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	names := make([]string, 0, len(ms.matchers))
	for name := range ms.matchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtinMatchers = []MatcherDef{
	{
		Name:  "$go",
		Owner: "go",
		Patterns: []Pattern{
			{Regexp: `^(.+\.go):(\d+):(\d+):\s*(.+)$`, File: 1, Line: 2, Column: 3, Message: 4, Default: SeverityError},
			{Regexp: `^(.+\.go):(\d+):\s*(.+)$`, File: 1, Line: 2, Message: 3, Default: SeverityError},
		},
	},
	{
		Name:  "$gcc",
		Owner: "gcc",
		Patterns: []Pattern{
			{Regexp: `^(.+):(\d+):(\d+):\s*(error|warning|note):\s*(.+)$`, File: 1, Line: 2, Column: 3, Severity: 4, Message: 5},
			{Regexp: `^(.+):(\d+):\s*(error|warning|note):\s*(.+)$`, File: 1, Line: 2, Severity: 3, Message: 4},
		},
	},
	{
		Name:  "$tsc",
		Owner: "typescript",
		Patterns: []Pattern{
			{Regexp: `^(.+)\((\d+),(\d+)\):\s*(error|warning)\s+(\w+):\s*(.+)$`, File: 1, Line: 2, Column: 3, Severity: 4, Code: 5, Message: 6},
		},
	},
	{
		Name:  "$eslint-compact",
		Owner: "eslint",
		Patterns: []Pattern{
			{Regexp: `^(.+):\s*line\s+(\d+),\s*col\s+(\d+),\s*(Error|Warning)\s*-\s*(.+)$`, File: 1, Line: 2, Column: 3, Severity: 4, Message: 5},
		},
	},
	{
		Name:  "$pylint",
		Owner: "pylint",
		Patterns: []Pattern{
			{Regexp: `^(.+):(\d+):(\d+):\s*([A-Z]\d+):\s*(.+)$`, File: 1, Line: 2, Column: 3, Code: 4, Message: 5, Default: SeverityWarning},
		},
	},
	{
		Name:  "$rustc",
		Owner: "rustc",
		Patterns: []Pattern{
			{Regexp: `^\s*-->\s*(.+):(\d+):(\d+)$`, File: 1, Line: 2, Column: 3, Default: SeverityError},
		},
	},
	{
		Name:  "$generic",
		Owner: "generic",
		Patterns: []Pattern{
			{Regexp: `^(.+):(\d+):\s*(.+)$`, File: 1, Line: 2, Message: 3, Default: SeverityError},
		},
	},
}
