package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/space"
	"github.com/bamsammich/span/internal/stats"
)

// ensureInitialized creates target and clears its top-level contents, at
// most once per run. Housekeeping entries survive.
func (r *run) ensureInitialized(ctx context.Context, target string) error {
	if _, ok := r.cleared[target]; ok {
		return nil
	}
	r.logf(slog.LevelInfo, "Preparing target for this run: %s", target)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTargetInit, target, err)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTargetInit, target, err)
	}

	var removed, failed int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(target, e.Name())
		if Ignored(e.Name()) {
			r.logger.Debug("skipping ignored item during clear", "path", p)
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			r.logf(slog.LevelWarn, "Failed to remove %s during clear: %v. Skip.", p, err)
			failed++
			continue
		}
		removed++
	}
	if failed > 0 {
		r.logf(slog.LevelWarn, "Finished clearing %s: %d items failed removal.", target, failed)
	} else {
		r.logger.Debug("cleared target", "target", target, "removed", removed)
	}

	r.cleared[target] = struct{}{}
	r.target.Reset()
	r.logf(slog.LevelInfo, "Target %s prepared.", target)
	return nil
}

// checkSpace reports whether size more bytes fit on target while keeping
// the configured margin free. Unknown usage counts as a fit.
func (r *run) checkSpace(target string, size int64) bool {
	c := space.CheckFit(r.oracle, target, size, r.sess.Settings.FreeSpacePercent)
	if !c.Known {
		r.logf(slog.LevelWarn, "Could not check disk usage for %s: %v. Assuming it fits.", target, c.Err)
		return true
	}
	if !c.Fits {
		r.logger.Debug("does not fit",
			"target", target,
			"size", size,
			"free", c.Usage.Free,
			"margin", c.Margin,
		)
	}
	return c.Fits
}

// reserve makes sure the active target can take size bytes, switching
// targets when it cannot. It returns the destination path to write to.
func (r *run) reserve(ctx context.Context, src, dst string, size int64) (string, error) {
	if r.checkSpace(r.root(), size) {
		return dst, nil
	}
	return r.switchTarget(ctx, src, size)
}

// switchTarget abandons the full target for the next one. The checkpoint is
// saved first so a crash never skips the switch on resume.
func (r *run) switchTarget(ctx context.Context, item string, size int64) (string, error) {
	full := r.root()
	r.logf(slog.LevelInfo, "Target %s appears full (checking for %s).", full, stats.HumanSize(size))
	r.emitter.Emit(event.Event{
		Type:     event.TargetFullStats,
		Path:     full,
		Items:    r.target.Items,
		Bytes:    r.target.Bytes,
		LastItem: r.target.LastItem,
	})
	r.save()

	if r.index+1 >= len(r.sess.Targets) {
		r.logf(slog.LevelError, "Ran out of targets. Cannot process: %s", item)
		r.fail(item, ReasonOutOfSpace)
		return "", fmt.Errorf("%w: cannot place %s", ErrOutOfTargets, item)
	}
	r.index++
	r.target.Reset()
	r.metrics.IncTargetSwitches()
	r.metrics.SetTargetIndex(r.index)

	next := r.root()
	r.logf(slog.LevelInfo, "Switching to next target: %s", next)
	r.emitter.Emit(event.Event{Type: event.TargetSwitch, Index: r.index, Path: next})

	if err := r.ensureInitialized(ctx, next); err != nil {
		if isCancel(err) {
			return "", err
		}
		r.logf(slog.LevelError, "Failed to prepare new target %s: %v", next, err)
		return "", err
	}

	if !r.checkSpace(next, size) {
		r.logf(slog.LevelError, "Insufficient space on new target %s for %s (size %s).",
			next, item, stats.HumanSize(size))
		r.fail(item, ReasonNewTargetFull)
		return "", fmt.Errorf("%w: %s needs %s on %s", ErrNewTargetTooSmall, item, stats.HumanSize(size), next)
	}

	dst, ok := r.destFor(item)
	if !ok {
		r.fail(item, ReasonPathError)
		return "", fmt.Errorf("path error after switch for %s", item)
	}
	return dst, nil
}
