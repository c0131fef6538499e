// Package engine mirrors a source tree onto an ordered list of targets,
// spanning to the next target when the active one runs out of room.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/metrics"
	"github.com/bamsammich/span/internal/platform"
	"github.com/bamsammich/span/internal/space"
	"github.com/bamsammich/span/internal/stats"
)

// run is the state of one sync. It is owned by the goroutine calling Run.
type run struct {
	sess    Session
	opts    Options
	logger  *slog.Logger
	emitter *event.Emitter
	store   *checkpoint.Store
	oracle  space.Oracle
	metrics metrics.SyncMetrics

	index   int
	last    *string
	cursor  *cursor
	cleared map[string]struct{}
	total   stats.Tally
	target  stats.Tally
	failed  []FailedItem
	temps   tempFiles

	copyFile    func(platform.CopyFileParams) (platform.CopyResult, error)
	removeEntry func(path string, dir bool) error
	symlink     func(oldname, newname string) error
}

// Run performs one sync, blocking until it finishes, fails fatally or ctx
// is cancelled. The terminal event is always emitted before Run returns.
func Run(ctx context.Context, sess Session, opts Options) Result {
	r := newRun(sess, opts)
	err := r.execute(ctx)
	r.temps.cleanup()
	return r.finish(ctx, err)
}

func newRun(sess Session, opts Options) *run {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")
	if opts.Oracle == nil {
		opts.Oracle = space.Statfs{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	store := opts.Store
	if store == nil && sess.CheckpointPath != "" {
		store = checkpoint.NewStore(sess.CheckpointPath)
	}

	sess.Source = filepath.Clean(sess.Source)
	targets := make([]string, len(sess.Targets))
	for i, t := range sess.Targets {
		targets[i] = filepath.Clean(t)
	}
	sess.Targets = targets

	r := &run{
		sess:    sess,
		opts:    opts,
		logger:  logger,
		emitter: event.NewEmitter(opts.Events, logger),
		store:   store,
		oracle:  opts.Oracle,
		metrics: opts.Metrics,
		cleared: make(map[string]struct{}),

		copyFile:    platform.CopyFile,
		removeEntry: removeEntry,
		symlink:     os.Symlink,
	}
	r.target.Reset()
	return r
}

func (r *run) execute(ctx context.Context) error {
	r.logf(slog.LevelInfo, "Sync started: %s -> %d target(s).", r.sess.Source, len(r.sess.Targets))

	if err := r.validate(); err != nil {
		return err
	}

	state := r.loadCheckpoint()
	r.index = state.TargetIndex
	r.last = state.LastProcessed
	if r.index < 0 || r.index >= len(r.sess.Targets) {
		r.logf(slog.LevelWarn, "Invalid target index %d in checkpoint. Resetting to 0.", r.index)
		state = checkpoint.Fresh()
		r.index = 0
		r.last = nil
		r.save()
	}
	r.cursor = newCursor(r.sess.Source, state.Last())

	if state.Resuming() {
		if !r.cursor.Active() {
			r.logf(slog.LevelWarn, "Checkpoint path %s is outside the source. Processing everything.", state.Last())
		} else {
			// Already cleared by the run that wrote the checkpoint.
			r.cleared[r.root()] = struct{}{}
			r.logf(slog.LevelInfo, "Resuming after %s on target %s.", state.Last(), r.root())
		}
	}
	r.metrics.SetTargetIndex(r.index)

	if err := r.ensureInitialized(ctx, r.root()); err != nil {
		if isCancel(err) {
			return err
		}
		r.logf(slog.LevelError, "Failed to initialize first target directory: %v", err)
		return err
	}

	return r.syncDirectory(ctx, r.sess.Source)
}

func (r *run) validate() error {
	if len(r.sess.Targets) == 0 {
		return ErrNoTargets
	}
	if err := r.sess.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	for _, t := range r.sess.Targets {
		if _, ok := splitRel(t, r.sess.Source); ok {
			return fmt.Errorf("%w: %s", ErrTargetOverlap, t)
		}
		if _, ok := splitRel(r.sess.Source, t); ok {
			return fmt.Errorf("%w: %s", ErrTargetOverlap, t)
		}
	}
	return nil
}

func (r *run) finish(ctx context.Context, err error) Result {
	res := Result{
		Items:  r.total.Items,
		Bytes:  r.total.Bytes,
		Failed: r.failed,
	}
	failures := toFailures(r.failed)

	switch {
	case err != nil && !isCancel(err):
		res.Outcome = OutcomeError
		res.Err = err
		r.logf(slog.LevelError, "Sync failed: %v", err)
		r.emitter.Emit(event.Event{Type: event.Error, Message: err.Error(), Failed: failures})
	case ctx.Err() != nil:
		res.Outcome = OutcomeCancelled
		r.logf(slog.LevelWarn, "Sync cancelled.")
		r.emitter.Emit(event.Event{
			Type:   event.Cancelled,
			Items:  res.Items,
			Bytes:  res.Bytes,
			Failed: failures,
		})
	default:
		res.Outcome = OutcomeDone
		r.logf(slog.LevelInfo, "Sync finished: %d items, %s.", res.Items, stats.HumanSize(res.Bytes))
		r.emitter.Emit(event.Event{
			Type:   event.Done,
			Items:  res.Items,
			Bytes:  res.Bytes,
			Failed: failures,
		})
	}
	return res
}

// syncDirectory mirrors srcDir into the matching directory of the active
// target. Only run-fatal conditions and cancellation are returned.
func (r *run) syncDirectory(ctx context.Context, srcDir string) error {
	if err := r.signals(ctx); err != nil {
		return err
	}

	dstDir, ok := r.destFor(srcDir)
	if !ok {
		r.logf(slog.LevelError, "Path error for directory %s. Skipping.", srcDir)
		r.fail(srcDir, ReasonPathError)
		return nil
	}
	r.status(event.ScopeDirectory, srcDir, "Scanning/Comparing...", dstDir)

	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		r.logf(slog.LevelError, "Cannot list source dir %s: %v", srcDir, err)
		r.fail(srcDir, ReasonCannotListSrc)
		return nil
	}

	var dstEntries []os.DirEntry
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		r.logf(slog.LevelWarn, "Cannot create dest dir %s: %v. Cleanup skipped.", dstDir, err)
	} else if dstEntries, err = os.ReadDir(dstDir); err != nil {
		r.logf(slog.LevelWarn, "Cannot list dest dir %s: %v. Cleanup skipped.", dstDir, err)
		dstEntries = nil
	}

	srcNames := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		srcNames[e.Name()] = struct{}{}
	}
	if err := r.deleteExtraneous(ctx, dstDir, srcNames, dstEntries); err != nil {
		return err
	}

	for i, e := range entries {
		if err := r.signals(ctx); err != nil {
			return err
		}

		src := filepath.Join(srcDir, e.Name())
		resuming := r.cursor.Active()
		switch r.cursor.check(src) {
		case verdictSkip:
			r.logger.Debug("skipping, completed before resume", "path", src)
			continue
		case verdictEnter:
			r.logger.Debug("entering toward resume point", "path", src)
		case verdictProcess:
			if resuming {
				r.logf(slog.LevelInfo, "Resume point reached. Processing from: %s", src)
			}
		}

		dst, ok := r.destFor(src)
		if !ok {
			r.logf(slog.LevelError, "Path error %s. Skipping.", src)
			r.fail(src, ReasonPathError)
			continue
		}

		r.emitter.Emit(event.Event{
			Type:    event.ItemStart,
			Path:    src,
			DstPath: dst,
			Index:   i,
			Total:   len(entries),
		})

		res, err := r.syncEntry(ctx, src, dst, e)
		if err != nil {
			if !isCancel(err) {
				r.emitItemDone(src, res.dst, false)
			}
			return err
		}

		if res.counted {
			r.total.Add(src, res.bytes)
			r.target.Add(src, res.bytes)
			p := src
			r.last = &p
			r.save()
			r.metrics.IncItemsSynced()
			r.metrics.AddBytesCopied(res.bytes)
			r.emitter.Emit(event.Event{
				Type:  event.ProgressUpdate,
				Items: r.total.Items,
				Bytes: r.total.Bytes,
			})
		}
		r.emitItemDone(src, res.dst, res.ok)
	}

	r.status(event.ScopeDirectory, srcDir, "Directory done.", dstDir)
	return nil
}

// itemResult is what processing one entry produced. counted items advance
// the checkpoint and the run totals.
type itemResult struct {
	ok      bool
	counted bool
	bytes   int64
	dst     string
}

func (r *run) syncEntry(ctx context.Context, src, dst string, e fs.DirEntry) (itemResult, error) {
	mode := e.Type()
	switch {
	case mode.IsDir():
		r.status(event.ScopeItem, src, "Entering dir...", dst)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			r.logf(slog.LevelError, "Cannot create dir %s: %v", dst, err)
			r.fail(src, ReasonDirFailed)
			return itemResult{dst: dst}, nil
		}
		if err := r.syncDirectory(ctx, src); err != nil {
			return itemResult{dst: dst}, err
		}
		return itemResult{ok: true, dst: dst}, nil

	case mode&fs.ModeSymlink != 0:
		r.status(event.ScopeItem, src, "Processing link...", dst)
		ok := r.syncLink(src, dst)
		return itemResult{ok: ok, counted: ok, dst: dst}, nil

	case mode.IsRegular():
		r.status(event.ScopeItem, src, "Processing file...", dst)
		return r.syncFile(ctx, src, dst)

	default:
		r.logf(slog.LevelWarn, "Skip unknown type: %s", src)
		r.fail(src, ReasonUnknownType)
		return itemResult{dst: dst}, nil
	}
}

func (r *run) syncFile(ctx context.Context, src, dst string) (itemResult, error) {
	info, err := os.Lstat(src)
	if err != nil {
		r.logf(slog.LevelError, "Size error: %s: %v", src, err)
		r.fail(src, ReasonSizeError)
		return itemResult{dst: dst}, nil
	}

	if r.upToDate(info, dst) {
		r.logger.Debug("skip matching file", "path", dst)
		return itemResult{ok: true, counted: true, dst: dst}, nil
	}

	dst, err = r.reserve(ctx, src, dst, info.Size())
	if err != nil {
		return itemResult{dst: dst}, err
	}

	copied, err := r.copyWithRetry(ctx, src, dst, info)
	if err != nil {
		return itemResult{dst: dst}, err
	}
	if !copied {
		r.fail(src, ReasonCopyFailed)
		return itemResult{dst: dst}, nil
	}
	return itemResult{ok: true, counted: true, bytes: info.Size(), dst: dst}, nil
}

// upToDate reports whether dst already matches src by size and by
// whole-second modification time.
func (r *run) upToDate(src os.FileInfo, dst string) bool {
	di, err := os.Lstat(dst)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logf(slog.LevelWarn, "Meta compare error: %v. Will copy.", err)
		}
		return false
	}
	if !di.Mode().IsRegular() {
		return false
	}
	if di.Size() == src.Size() && di.ModTime().Unix() >= src.ModTime().Unix() {
		return true
	}
	r.logf(slog.LevelInfo, "Dest differs: %s. Overwrite.", dst)
	return false
}

// syncLink recreates the source link at dst. An existing link at dst is
// left alone without comparing targets.
func (r *run) syncLink(src, dst string) bool {
	if di, err := os.Lstat(dst); err == nil && di.Mode()&fs.ModeSymlink != 0 {
		r.logf(slog.LevelInfo, "Dest link exists, skip create: %s", dst)
		return true
	}

	target, err := os.Readlink(src)
	if err == nil {
		err = os.MkdirAll(filepath.Dir(dst), 0o755)
	}
	if err == nil {
		if _, statErr := os.Lstat(dst); statErr == nil {
			r.logf(slog.LevelWarn, "Removing non-link at %s pre-link.", dst)
			err = os.RemoveAll(dst)
		}
	}
	if err == nil {
		err = r.symlink(target, dst)
	}
	if err != nil {
		r.logf(slog.LevelWarn, "Symlink fail: %v. Skip.", err)
		r.fail(src, ReasonSymlinkFailed)
		return false
	}
	r.logf(slog.LevelInfo, "Created symlink: %s -> %s", dst, target)
	return true
}

// root is the active target directory. It is re-read for every path since
// the target can change mid-directory.
func (r *run) root() string {
	return r.sess.Targets[r.index]
}

func (r *run) destFor(src string) (string, bool) {
	parts, ok := splitRel(r.sess.Source, src)
	if !ok {
		return "", false
	}
	return filepath.Join(append([]string{r.root()}, parts...)...), true
}

// signals returns ctx.Err() once cancelled and holds while paused.
func (r *run) signals(ctx context.Context) error {
	return waitWhilePaused(ctx, r.opts.Pauser, r.opts.PollInterval)
}

func (r *run) loadCheckpoint() checkpoint.State {
	if r.store == nil {
		return checkpoint.Fresh()
	}
	st, err := r.store.Load()
	switch {
	case errors.Is(err, checkpoint.ErrInvalid):
		r.logf(slog.LevelWarn, "Checkpoint %s invalid: %v. Starting fresh.", r.store.Path(), err)
		return checkpoint.Fresh()
	case err != nil:
		r.logf(slog.LevelError, "Error loading checkpoint %s: %v. Starting fresh.", r.store.Path(), err)
		return checkpoint.Fresh()
	case st.Resuming():
		r.logf(slog.LevelInfo, "Loaded checkpoint from %s.", r.store.Path())
	default:
		r.logf(slog.LevelInfo, "No resume point in %s. Starting fresh.", r.store.Path())
	}
	return st
}

// save persists the last completed item and the active target index.
func (r *run) save() {
	if r.store == nil {
		return
	}
	st := checkpoint.State{LastProcessed: r.last, TargetIndex: r.index}
	if err := r.store.Save(st); err != nil {
		r.logf(slog.LevelError, "CRITICAL: failed to save checkpoint: %v", err)
		return
	}
	r.logger.Debug("saved checkpoint", "last", st.Last(), "index", st.TargetIndex)
}

func (r *run) fail(path, reason string) {
	r.failed = append(r.failed, FailedItem{Path: path, Reason: reason})
	r.metrics.IncItemsFailed(reason)
}

func (r *run) status(scope event.Scope, path, msg, dst string) {
	r.emitter.Emit(event.Event{
		Type:    event.Status,
		Scope:   scope,
		Path:    path,
		Message: msg,
		DstPath: dst,
	})
}

func (r *run) emitItemDone(src, dst string, ok bool) {
	r.emitter.Emit(event.Event{
		Type:    event.ItemDone,
		Path:    src,
		DstPath: dst,
		Success: ok,
	})
}

// logf logs through slog and mirrors the line to the controller.
func (r *run) logf(level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Log(context.Background(), level, msg)
	r.emitter.Emit(event.Event{Type: event.Log, Level: level, Message: msg})
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func toFailures(items []FailedItem) []event.Failure {
	out := make([]event.Failure, len(items))
	for i, f := range items {
		out[i] = event.Failure{Path: f.Path, Reason: f.Reason}
	}
	return out
}
