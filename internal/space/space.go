// Package space answers "will this write fit" questions about the filesystem
// that backs a target directory.
package space

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnknown is returned when usage cannot be determined for a path.
var ErrUnknown = errors.New("disk usage unknown")

// Usage is a point-in-time capacity reading.
type Usage struct {
	Total uint64
	Free  uint64
}

// Oracle reports usage for the filesystem hosting a path.
type Oracle interface {
	Usage(path string) (Usage, error)
}

// Check is the detailed answer to a fit question.
type Check struct {
	Fits     bool
	Known    bool // false when usage could not be read; Fits is then true
	Usage    Usage
	Required uint64 // candidate size plus margin
	Margin   uint64
	Err      error
}

// Margin returns the bytes that must stay free on a filesystem of the given
// total size.
func Margin(total uint64, freePercent int) uint64 {
	if freePercent <= 0 {
		return 0
	}
	return uint64(float64(total) * float64(freePercent) / 100.0)
}

// Fits reports whether size bytes can be written while keeping freePercent of
// the total free.
func Fits(u Usage, size int64, freePercent int) bool {
	need := Margin(u.Total, freePercent)
	if size > 0 {
		need += uint64(size)
	}
	return u.Free >= need
}

// CheckFit queries o for path and evaluates a candidate write. A failed
// query yields a Check with Fits=true and Known=false.
func CheckFit(o Oracle, path string, size int64, freePercent int) Check {
	u, err := o.Usage(path)
	if err != nil {
		return Check{Fits: true, Known: false, Err: err}
	}
	margin := Margin(u.Total, freePercent)
	required := margin
	if size > 0 {
		required += uint64(size)
	}
	return Check{
		Fits:     u.Free >= required,
		Known:    true,
		Usage:    u,
		Required: required,
		Margin:   margin,
	}
}

// Statfs is the Oracle backed by the statfs(2) family.
type Statfs struct{}

// Usage implements Oracle. Paths that do not exist yet are resolved to their
// nearest existing ancestor, which lives on the same filesystem.
func (Statfs) Usage(path string) (Usage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %s: %w", ErrUnknown, path, err)
	}
	p := existingAncestor(abs)
	u, err := statfs(p)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %s: %w", ErrUnknown, p, err)
	}
	return u, nil
}

func existingAncestor(p string) string {
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
