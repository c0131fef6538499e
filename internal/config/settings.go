package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultFreeSpacePercent = 10
	DefaultRetries          = 3
	DefaultRetryDelay       = 10 * time.Second

	// MaxFreeSpacePercent caps the reserved margin so a target can still
	// receive data.
	MaxFreeSpacePercent = 90
)

var (
	ErrFreePercentRange = errors.New("free space percent must be between 0 and 90")
	ErrNegativeRetries  = errors.New("retries must be >= 0")
	ErrNegativeDelay    = errors.New("retry delay must be >= 0")
	ErrSizeOverflow     = errors.New("size does not fit in 64 bits")
)

// Settings is the tuning record handed to the engine for one run.
type Settings struct {
	FreeSpacePercent int
	Retries          int
	RetryDelay       time.Duration
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		FreeSpacePercent: DefaultFreeSpacePercent,
		Retries:          DefaultRetries,
		RetryDelay:       DefaultRetryDelay,
	}
}

// Validate checks the ranges the engine relies on.
func (s Settings) Validate() error {
	if s.FreeSpacePercent < 0 || s.FreeSpacePercent > MaxFreeSpacePercent {
		return fmt.Errorf("%w: got %d", ErrFreePercentRange, s.FreeSpacePercent)
	}
	if s.Retries < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeRetries, s.Retries)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("%w: got %s", ErrNegativeDelay, s.RetryDelay)
	}
	return nil
}

// ParseSize parses a human-readable size string into bytes.
// Supports: 100, 100B, 100K, 100M, 100G, 100T (case-insensitive).
// Uses powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	multiplier := int64(1)
	numStr := s

	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
		numStr = s[:len(s)-1]
	case "K":
		multiplier = 1 << 10
		numStr = s[:len(s)-1]
	case "M":
		multiplier = 1 << 20
		numStr = s[:len(s)-1]
	case "G":
		multiplier = 1 << 30
		numStr = s[:len(s)-1]
	case "T":
		multiplier = 1 << 40
		numStr = s[:len(s)-1]
	}

	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		if n > math.MaxInt64/multiplier {
			return 0, fmt.Errorf("%w: %q", ErrSizeOverflow, s)
		}
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil || f < 0 || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	// 2^63 is the first float64 past MaxInt64.
	if v := f * float64(multiplier); math.IsInf(v, 0) || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q", ErrSizeOverflow, s)
	}
	return int64(f * float64(multiplier)), nil
}
