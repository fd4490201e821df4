package process

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Resolve(t *testing.T) {
	t.Setenv("PTASK_TEST_VAR", "from-env")

	r := NewResolver()
	r.Set("custom", "c")
	r.Register("dynamic", func(s *Scope) string { return "d-" + s.TaskID })
	scope := &Scope{
		WorkspaceFolder: "/work/project",
		TaskID:          "build",
		TaskName:        "Build all",
		SessionID:       "s1",
		Extra:           map[string]string{"module": "core"},
	}

	cases := map[string]string{
		"${workspaceFolder}/bin":         "/work/project/bin",
		"${workspaceFolderBasename}":     "project",
		"${taskId} / ${taskName}":        "build / Build all",
		"${sessionId}":                   "s1",
		"${module}":                      "core",
		"${custom}${dynamic}":            "cd-build",
		"${env:PTASK_TEST_VAR}":          "from-env",
		"${env:PTASK_TEST_MISSING}":      "",
		"${env:PTASK_TEST_MISSING:dflt}": "dflt",
		"${unknown}":                     "${unknown}",
		"${unknown:fallback}":            "fallback",
		"$HOME stays":                    "$HOME stays",
		"${pathSeparator}":               string(filepath.Separator),
	}
	for input, want := range cases {
		t.Run("Should resolve "+input, func(t *testing.T) {
			assert.Equal(t, want, r.Resolve(input, scope))
		})
	}
}

func TestResolver_ExtraOverridesCustom(t *testing.T) {
	r := NewResolver()
	r.Set("module", "custom")
	assert.Equal(t, "extra", r.Resolve("${module}", &Scope{Extra: map[string]string{"module": "extra"}}))
	assert.Equal(t, "custom", r.Resolve("${module}", nil))
}
