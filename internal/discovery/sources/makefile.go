// Package sources provides discovery sources for common build files.
package sources

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/runners/process"
)

var (
	makeTargetPattern  = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_.-]*)\s*:([^=].*)?$`)
	makePhonyPattern   = regexp.MustCompile(`^\.PHONY\s*:\s*(.+)$`)
	makeCommentPattern = regexp.MustCompile(`^##\s*(.*)$`)
	makeDefaultPattern = regexp.MustCompile(`^\.DEFAULT_GOAL\s*[:?]?=\s*(\S+)`)
)

// Makefile discovers make targets. Prerequisites that are themselves
// targets of the same file become dependencies.
type Makefile struct{}

// NewMakefile creates a Makefile source.
func NewMakefile() *Makefile {
	return &Makefile{}
}

// Name implements discovery.Source.
func (s *Makefile) Name() string { return "makefile" }

// Patterns implements discovery.Source.
func (s *Makefile) Patterns() []string {
	return []string{"Makefile", "makefile", "GNUmakefile", "*.mk"}
}

// Priority implements discovery.Source.
func (s *Makefile) Priority() int { return 100 }

type makeTarget struct {
	name    string
	prereqs []string
	comment string
}

// Discover implements discovery.Source.
func (s *Makefile) Discover(ctx context.Context, path string) ([]*discovery.Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		targets     []*makeTarget
		byName      = make(map[string]*makeTarget)
		phony       = make(map[string]bool)
		defaultGoal string
		comment     string
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()

		if m := makeCommentPattern.FindStringSubmatch(line); m != nil {
			comment = m[1]
			continue
		}
		if m := makePhonyPattern.FindStringSubmatch(line); m != nil {
			for _, name := range strings.Fields(m[1]) {
				phony[name] = true
			}
			continue
		}
		if m := makeDefaultPattern.FindStringSubmatch(line); m != nil {
			defaultGoal = m[1]
			continue
		}
		if m := makeTargetPattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			if strings.HasPrefix(m[2], ":") && strings.Contains(m[2], "=") {
				// VAR ::= value
				continue
			}
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				comment = ""
				continue
			}
			t, ok := byName[name]
			if !ok {
				t = &makeTarget{name: name}
				byName[name] = t
				targets = append(targets, t)
				if defaultGoal == "" && len(targets) == 1 {
					defaultGoal = name
				}
			}
			t.prereqs = append(t.prereqs, prerequisites(m[2])...)
			if comment != "" {
				t.comment = comment
			}
			comment = ""
			continue
		}
		if !strings.HasPrefix(line, "#") && strings.TrimSpace(line) != "" {
			comment = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var defs []*discovery.Definition
	for _, t := range targets {
		// Without .PHONY every target counts as runnable.
		if len(phony) > 0 && !phony[t.name] {
			continue
		}
		var deps []string
		for _, p := range t.prereqs {
			if _, ok := byName[p]; ok && (len(phony) == 0 || phony[p]) {
				deps = append(deps, p)
			}
		}
		defs = append(defs, &discovery.Definition{
			Name:           t.name,
			Description:    t.comment,
			Kind:           process.KindProcess,
			Group:          discovery.InferGroup(t.name),
			Command:        "make",
			Args:           []string{t.name},
			DependsOn:      deps,
			ProblemMatcher: "$gcc",
			IsDefault:      t.name == defaultGoal || t.name == "all" || t.name == "default",
		})
	}
	return defs, nil
}

// prerequisites splits the text after a target's colon, dropping the
// order-only separator and any inline recipe.
func prerequisites(s string) []string {
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "#"); i >= 0 {
		s = s[:i]
	}
	var out []string
	for _, f := range strings.Fields(s) {
		if f == "|" || strings.ContainsAny(f, "%$") {
			continue
		}
		out = append(out, f)
	}
	return out
}
