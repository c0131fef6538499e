package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/span/internal/config"
	"github.com/bamsammich/span/internal/engine"
)

func TestExitFor(t *testing.T) {
	tests := []struct {
		name   string
		result engine.Result
		code   int
	}{
		{"clean", engine.Result{Outcome: engine.OutcomeDone}, 0},
		{"item failures", engine.Result{
			Outcome: engine.OutcomeDone,
			Failed:  []engine.FailedItem{{Path: "/src/a", Reason: engine.ReasonCopyFailed}},
		}, 1},
		{"cancelled", engine.Result{Outcome: engine.OutcomeCancelled}, 1},
		{"fatal", engine.Result{Outcome: engine.OutcomeError, Err: engine.ErrOutOfTargets}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitFor(tt.result)
			if tt.code == 0 {
				assert.NoError(t, err)
				return
			}
			var exitErr *exitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tt.code, exitErr.code)
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	var f flags
	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&f.freePercent, "free-percent", 10, "")
	cmd.Flags().IntVar(&f.retries, "retries", 3, "")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", 10*time.Second, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--retries", "5"}))

	s := config.Settings{FreeSpacePercent: 20, Retries: 1, RetryDelay: time.Second}
	applyFlagOverrides(cmd, &f, &s)

	// Only the flag given on the command line replaces the file value.
	assert.Equal(t, config.Settings{FreeSpacePercent: 20, Retries: 5, RetryDelay: time.Second}, s)
}

func TestAbsPaths(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	src, targets, err := absPaths([]string{"src", "/mnt/a", "b"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), src)
	assert.Equal(t, []string{"/mnt/a", filepath.Join(dir, "b")}, targets)
}

func TestSizeFlag(t *testing.T) {
	var s sizeFlag
	require.NoError(t, s.Set("2M"))
	assert.Equal(t, int64(2*1024*1024), s.bytes)
	assert.Equal(t, "2M", s.String())
	assert.Equal(t, "size", s.Type())

	assert.Error(t, s.Set("lots"))
	assert.Equal(t, int64(2*1024*1024), s.bytes)
}
