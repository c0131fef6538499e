package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorInactive(t *testing.T) {
	c := newCursor("/src", "")
	assert.False(t, c.Active())
	assert.Equal(t, verdictProcess, c.check("/src/a"))

	c = newCursor("/src", "/elsewhere/a")
	assert.False(t, c.Active())
}

func TestCursorVerdicts(t *testing.T) {
	root := filepath.FromSlash("/src")
	last := filepath.FromSlash("/src/b/m.txt")

	tests := []struct {
		path string
		want resumeVerdict
	}{
		{"/src/a.txt", verdictSkip},
		{"/src/a", verdictSkip},
		{"/src/b", verdictEnter},
		{"/src/b/a.txt", verdictSkip},
		{"/src/b/m.txt", verdictSkip},
		{"/src/b/n.txt", verdictProcess},
	}

	c := newCursor(root, last)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.check(filepath.FromSlash(tt.path)))
		})
	}
	assert.False(t, c.Active())
	assert.Equal(t, verdictProcess, c.check(filepath.FromSlash("/src/a.txt")))
}

func TestCursorSiblingPrefixName(t *testing.T) {
	// "b.txt" sorts after the directory "b" by name, so it is past the point.
	c := newCursor("/src", "/src/b/z")
	assert.Equal(t, verdictEnter, c.check("/src/b"))
	assert.Equal(t, verdictProcess, c.check("/src/b.txt"))
}

func TestComparePaths(t *testing.T) {
	assert.Negative(t, comparePaths([]string{"a"}, []string{"a", "b"}))
	assert.Negative(t, comparePaths([]string{"a", "z"}, []string{"b"}))
	assert.Positive(t, comparePaths([]string{"b"}, []string{"a", "z"}))
	assert.Zero(t, comparePaths([]string{"a", "b"}, []string{"a", "b"}))
	// Component-wise, not string-wise: "a-b" > "a" even though '-' < '/'.
	assert.Positive(t, comparePaths([]string{"a-b"}, []string{"a", "c"}))
}
