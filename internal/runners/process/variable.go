package process

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Scope carries the values variables are resolved against.
type Scope struct {
	WorkspaceFolder string
	TaskID          string
	TaskName        string
	SessionID       string

	// Extra holds task specific variables such as module or files.
	Extra map[string]string
}

// Provider computes a variable value from the scope. An empty value counts
// as unresolved.
type Provider func(s *Scope) string

var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolver substitutes ${...} variables.
type Resolver struct {
	mu        sync.RWMutex
	custom    map[string]string
	providers map[string]Provider
}

// NewResolver creates a resolver with the built-in providers.
func NewResolver() *Resolver {
	r := &Resolver{
		custom:    make(map[string]string),
		providers: make(map[string]Provider),
	}
	r.providers["workspaceFolder"] = workspaceFolder
	r.providers["workspaceFolderBasename"] = func(s *Scope) string {
		return filepath.Base(workspaceFolder(s))
	}
	r.providers["taskId"] = func(s *Scope) string { return s.TaskID }
	r.providers["taskName"] = func(s *Scope) string { return s.TaskName }
	r.providers["sessionId"] = func(s *Scope) string { return s.SessionID }
	r.providers["cwd"] = func(*Scope) string {
		cwd, _ := os.Getwd()
		return cwd
	}
	r.providers["pathSeparator"] = func(*Scope) string { return string(filepath.Separator) }
	return r
}

func workspaceFolder(s *Scope) string {
	if s.WorkspaceFolder != "" {
		return s.WorkspaceFolder
	}
	cwd, _ := os.Getwd()
	return cwd
}

// Set defines a custom variable. Custom variables take precedence over
// providers.
func (r *Resolver) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[name] = value
}

// Register adds or replaces a provider.
func (r *Resolver) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Resolve replaces ${name}, ${name:default}, ${env:NAME} and
// ${env:NAME:default} in input. Unknown variables without a default are
// left untouched.
func (r *Resolver) Resolve(input string, s *Scope) string {
	if s == nil {
		s = &Scope{}
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		inner := match[2 : len(match)-1]

		if env, ok := strings.CutPrefix(inner, "env:"); ok {
			name, def, _ := strings.Cut(env, ":")
			if v := os.Getenv(name); v != "" {
				return v
			}
			return def
		}

		name, def, hasDefault := strings.Cut(inner, ":")
		if v := r.lookup(name, s); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func (r *Resolver) lookup(name string, s *Scope) string {
	if v, ok := s.Extra[name]; ok {
		return v
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.custom[name]; ok {
		return v
	}
	if p, ok := r.providers[name]; ok {
		return p(s)
	}
	return ""
}
