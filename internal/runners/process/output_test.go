package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput(t *testing.T) {
	t.Run("Should keep lines from both streams in order", func(t *testing.T) {
		o := NewOutput(10, 0)
		var seen []int
		require.NoError(t, o.Consume(strings.NewReader("a\nb\n"), Stdout, func(l OutputLine) {
			seen = append(seen, l.Number)
		}))
		require.NoError(t, o.Consume(strings.NewReader("c"), Stderr, nil))

		assert.Equal(t, []int{1, 2}, seen)
		assert.Equal(t, "a\nb\nc", o.Text(AllStreams))
		assert.Equal(t, "a\nb", o.Text(Stdout))
		assert.Equal(t, "c", o.Text(Stderr))
		assert.Equal(t, 3, o.Total())
	})

	t.Run("Should keep only the most recent lines", func(t *testing.T) {
		o := NewOutput(2, 0)
		require.NoError(t, o.Consume(strings.NewReader("1\n2\n3\n4\n"), Stdout, nil))

		lines := o.Lines()
		require.Len(t, lines, 2)
		assert.Equal(t, "3", lines[0].Content)
		assert.Equal(t, "4", lines[1].Content)
		assert.Equal(t, 4, o.Total())
		assert.Len(t, o.Tail(1), 1)
		assert.Equal(t, "4", o.Tail(1)[0].Content)
		assert.Nil(t, o.Tail(0))
	})

	t.Run("Should fail on overlong lines", func(t *testing.T) {
		o := NewOutput(2, 8)
		err := o.Consume(strings.NewReader(strings.Repeat("x", 32)), Stdout, nil)
		assert.Error(t, err)
	})
}

func TestPolicy(t *testing.T) {
	cp, err := DefaultPolicy().compile()
	require.NoError(t, err)

	allowed := []string{"go build ./...", "make test && echo done", "rm -rf ./build"}
	for _, line := range allowed {
		assert.NoError(t, cp.check(line), line)
	}

	refused := []string{"sudo make install", "make && /usr/bin/sudo ls", "rm -rf /", "rm -rf ~"}
	for _, line := range refused {
		var pe *PolicyError
		assert.ErrorAs(t, cp.check(line), &pe, line)
	}

	tiny, err := Policy{MaxCommandLength: 4}.compile()
	require.NoError(t, err)
	assert.Error(t, tiny.check("echo hello"))

	_, err = Policy{BlockedPatterns: []string{"("}}.compile()
	assert.Error(t, err)
}
