package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/platform"
	"github.com/bamsammich/span/internal/stats"
)

// copyWithRetry copies src to dst in up to Retries attempts spaced by
// RetryDelay. It reports false when every attempt failed and returns an
// error only on cancellation.
func (r *run) copyWithRetry(ctx context.Context, src, dst string, info os.FileInfo) (bool, error) {
	retries := r.sess.Settings.Retries
	if retries <= 0 {
		r.logf(slog.LevelError, "Failed copy after 0 attempts: %s", src)
		return false, nil
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := r.signals(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := r.copyOnce(ctx, src, dst, info)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		r.logf(slog.LevelWarn, "Attempt %d/%d failed: %v", attempt, retries, err)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.sess.Settings.RetryDelay), uint64(retries-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(_ error, next time.Duration) {
		r.metrics.IncCopyRetries()
		r.logf(slog.LevelInfo, "Retrying copy in %s...", next)
	})
	switch {
	case err == nil:
		return true, nil
	case isCancel(err):
		return false, err
	default:
		r.logf(slog.LevelError, "Failed copy after %d attempts: %s", attempt, src)
		return false, nil
	}
}

// errShortCopy means the source yielded fewer bytes than its size at stat
// time, e.g. it was truncated mid-copy.
var errShortCopy = errors.New("short copy")

// copyOnce writes src into a temporary file beside dst, carries over mode
// and timestamps, then renames it into place.
func (r *run) copyOnce(ctx context.Context, src, dst string, info os.FileInfo) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	r.status(event.ScopeItem, src, fmt.Sprintf("Copying (%s)...", stats.HumanSize(info.Size())), dst)

	tmpPath := r.temps.next(dst)
	defer r.temps.release(tmpPath)

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	if info.Size() > 0 {
		result, err := r.copyFile(platform.CopyFileParams{
			Ctx:     ctx,
			Limiter: r.opts.Limiter,
			DstFd:   tmpFd,
			SrcPath: src,
			SrcSize: info.Size(),
		})
		if err != nil {
			tmpFd.Close()
			return fmt.Errorf("copy data %s: %w", src, err)
		}
		if result.BytesWritten != info.Size() {
			tmpFd.Close()
			return fmt.Errorf("%w: %s: wrote %d of %d bytes", errShortCopy, src, result.BytesWritten, info.Size())
		}
		r.logger.Debug("copied", "path", src, "bytes", result.BytesWritten, "method", result.Method)
	}

	if err := tmpFd.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := platform.ApplyMetadata(tmpPath, platform.MetadataOf(info)); err != nil {
		return err
	}

	// A directory left where the file belongs would block the rename.
	if di, err := os.Lstat(dst); err == nil && di.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("remove dir at %s: %w", dst, err)
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return nil
}
