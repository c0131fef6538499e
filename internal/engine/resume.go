package engine

import (
	"path/filepath"
	"strings"
)

// cursor decides which items a resumed run has already completed. Paths are
// compared component by component relative to the source root, which is
// the order the walk visits them in.
type cursor struct {
	root   string
	last   []string
	active bool
}

// newCursor returns an inactive cursor when last is empty or not under root.
func newCursor(root, last string) *cursor {
	c := &cursor{root: root}
	if last == "" {
		return c
	}
	parts, ok := splitRel(root, last)
	if !ok || len(parts) == 0 {
		return c
	}
	c.last = parts
	c.active = true
	return c
}

type resumeVerdict int

const (
	verdictProcess resumeVerdict = iota // past the resume point
	verdictSkip                         // already completed
	verdictEnter                        // directory holding the resume point
)

// check classifies path. The first path ordering after the checkpoint
// deactivates the cursor for the rest of the run.
func (c *cursor) check(path string) resumeVerdict {
	if !c.active {
		return verdictProcess
	}
	parts, ok := splitRel(c.root, path)
	if !ok {
		return verdictProcess
	}
	if isPrefix(parts, c.last) && len(parts) < len(c.last) {
		return verdictEnter
	}
	if comparePaths(parts, c.last) <= 0 {
		return verdictSkip
	}
	c.active = false
	return verdictProcess
}

func (c *cursor) Active() bool { return c.active }

func splitRel(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	return strings.Split(rel, string(filepath.Separator)), true
}

func isPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// comparePaths orders split paths the way a sorted depth-first walk visits
// them: by first differing component, a parent before its children.
func comparePaths(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
