package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchers_Builtin(t *testing.T) {
	ms := NewMatchers()

	cases := []struct {
		matcher string
		line    string
		want    Problem
	}{
		{
			matcher: "$go",
			line:    "./pkg/a.go:12:7: undefined: foo",
			want:    Problem{File: "./pkg/a.go", Line: 12, Column: 7, Severity: SeverityError, Message: "undefined: foo", Source: "go"},
		},
		{
			matcher: "$gcc",
			line:    "main.c:4:2: warning: unused variable 'x'",
			want:    Problem{File: "main.c", Line: 4, Column: 2, Severity: SeverityWarning, Message: "unused variable 'x'", Source: "gcc"},
		},
		{
			matcher: "$tsc",
			line:    "src/app.ts(3,10): error TS2304: Cannot find name 'y'.",
			want:    Problem{File: "src/app.ts", Line: 3, Column: 10, Severity: SeverityError, Code: "TS2304", Message: "Cannot find name 'y'.", Source: "typescript"},
		},
		{
			matcher: "$pylint",
			line:    "mod.py:1:0: C0114: Missing module docstring",
			want:    Problem{File: "mod.py", Line: 1, Column: 0, Severity: SeverityWarning, Code: "C0114", Message: "Missing module docstring", Source: "pylint"},
		},
		{
			matcher: "$rustc",
			line:    "  --> src/main.rs:2:5",
			want:    Problem{File: "src/main.rs", Line: 2, Column: 5, Severity: SeverityError, Source: "rustc"},
		},
	}

	for _, tc := range cases {
		t.Run("Should match "+tc.matcher, func(t *testing.T) {
			m, ok := ms.Get(tc.matcher)
			require.True(t, ok)
			got, ok := m.Match(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("Should ignore unrelated lines", func(t *testing.T) {
		m, _ := ms.Get("$go")
		_, ok := m.Match("ok  	github.com/x/y	0.01s")
		assert.False(t, ok)
	})
}

func TestMatchers_Register(t *testing.T) {
	t.Run("Should add a custom matcher", func(t *testing.T) {
		ms := NewMatchers()
		err := ms.Register(MatcherDef{
			Name:  "$lint",
			Owner: "lint",
			Patterns: []Pattern{
				{Regexp: `^(\w+): (.+) at (\d+)$`, Severity: 1, Message: 2, Line: 3},
			},
		})
		require.NoError(t, err)
		assert.Contains(t, ms.Names(), "$lint")

		m, _ := ms.Get("$lint")
		p, ok := m.Match("note: shadowed at 9")
		require.True(t, ok)
		assert.Equal(t, SeverityInfo, p.Severity)
		assert.Equal(t, 9, p.Line)
		assert.Equal(t, ":9: info: shadowed", p.String())
	})

	t.Run("Should reject an invalid expression", func(t *testing.T) {
		ms := NewMatchers()
		err := ms.Register(MatcherDef{Name: "$bad", Patterns: []Pattern{{Regexp: "("}}})
		assert.Error(t, err)
		_, ok := ms.Get("$bad")
		assert.False(t, ok)
	})
}
