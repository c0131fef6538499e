package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/span/internal/event"
)

// deleteExtraneous removes entries of dstDir that have no counterpart in the
// source directory. Housekeeping names are kept. A failed removal is
// recorded and the pass continues.
func (r *run) deleteExtraneous(
	ctx context.Context,
	dstDir string,
	srcNames map[string]struct{},
	dstEntries []os.DirEntry,
) error {
	for _, e := range dstEntries {
		name := e.Name()
		if _, ok := srcNames[name]; ok || Ignored(name) {
			continue
		}
		if err := r.signals(ctx); err != nil {
			return err
		}

		p := filepath.Join(dstDir, name)
		r.status(event.ScopeItem, p, "Deleting...", p)

		if err := r.removeEntry(p, e.IsDir()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logf(slog.LevelWarn, "Failed delete: %s (%v)", p, err)
			r.fail(p, ReasonDeleteFailed)
			continue
		}
		r.metrics.IncItemsDeleted()
		r.logf(slog.LevelInfo, "Deleted extra item: %s", p)
	}
	return nil
}

// removeEntry unlinks files and links and removes directories recursively.
func removeEntry(p string, dir bool) error {
	if dir {
		return os.RemoveAll(p)
	}
	return os.Remove(p)
}
