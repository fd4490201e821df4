package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/runners/process"
)

var errInvalidJSON = errors.New("invalid JSON")

// PackageJSON discovers npm scripts. A "pre<x>" script becomes a
// dependency of "<x>", and "post<x>" depends on "<x>".
type PackageJSON struct{}

// NewPackageJSON creates a package.json source.
func NewPackageJSON() *PackageJSON {
	return &PackageJSON{}
}

// Name implements discovery.Source.
func (s *PackageJSON) Name() string { return "npm" }

// Patterns implements discovery.Source.
func (s *PackageJSON) Patterns() []string { return []string{"package.json"} }

// Priority implements discovery.Source.
func (s *PackageJSON) Priority() int { return 90 }

// Discover implements discovery.Source.
func (s *PackageJSON) Discover(ctx context.Context, path string) ([]*discovery.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, errInvalidJSON
	}

	pkg := gjson.ParseBytes(data)
	scripts := pkg.Get("scripts")
	if !scripts.IsObject() {
		return nil, nil
	}

	bodies := make(map[string]string)
	var names []string
	scripts.ForEach(func(k, v gjson.Result) bool {
		names = append(names, k.String())
		bodies[k.String()] = v.String()
		return true
	})

	manager := detectPackageManager(filepath.Dir(path))
	hasTypeScript := pkg.Get("devDependencies.typescript").Exists() ||
		pkg.Get("dependencies.typescript").Exists()

	var defs []*discovery.Definition
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		script := bodies[name]
		d := &discovery.Definition{
			Name:           name,
			Description:    truncate(script, 80),
			Kind:           process.KindProcess,
			Group:          discovery.InferGroup(name),
			Command:        manager,
			Args:           []string{"run", name},
			ProblemMatcher: inferMatcher(name, script, hasTypeScript),
		}
		switch name {
		case "start", "dev":
			d.Group = discovery.GroupRun
		case "build":
			d.Group = discovery.GroupBuild
			d.IsDefault = true
		case "test":
			d.Group = discovery.GroupTest
			d.IsDefault = true
		}
		if _, ok := bodies["pre"+name]; ok {
			d.DependsOn = append(d.DependsOn, "pre"+name)
		}
		if target, ok := strings.CutPrefix(name, "post"); ok {
			if _, exists := bodies[target]; exists {
				d.DependsOn = append(d.DependsOn, target)
			}
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func detectPackageManager(dir string) string {
	lockFiles := []struct{ file, manager string }{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"bun.lockb", "bun"},
		{"bun.lock", "bun"},
		{"package-lock.json", "npm"},
	}
	for _, lf := range lockFiles {
		if _, err := os.Stat(filepath.Join(dir, lf.file)); err == nil {
			return lf.manager
		}
	}
	return "npm"
}

func inferMatcher(name, script string, hasTypeScript bool) string {
	lower := strings.ToLower(script)
	switch {
	case strings.Contains(lower, "tsc"):
		return "$tsc"
	case strings.Contains(lower, "eslint"):
		return "$eslint-compact"
	case hasTypeScript && (name == "build" || name == "compile"):
		return "$tsc"
	}
	return ""
}
