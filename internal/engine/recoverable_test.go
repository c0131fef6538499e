package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/platform"
)

func TestRun_ClosedEventChannel(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 10)
	writeFile(t, f.src, "sub/b.txt", 20)

	ch := make(chan event.Event, 1)
	close(ch)

	var res Result
	require.NotPanics(t, func() {
		res = Run(context.Background(), f.session(), Options{
			Events: ch,
			Oracle: ample(f.targets...),
			Store:  f.store,
		})
	})

	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, int64(2), res.Items)
	assert.Equal(t, int64(30), res.Bytes)
	assert.FileExists(t, filepath.Join(f.targets[0], "sub", "b.txt"))
}

func TestRun_DeleteFailureContinues(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 4)
	mirrorFile(t, f.src, f.targets[0], "a.txt")
	writeFile(t, f.targets[0], "extra1.txt", 4)
	writeFile(t, f.targets[0], "extra2.txt", 4)
	require.NoError(t, f.store.Save(checkpoint.At(filepath.Join(f.src, "a.txt"), 0)))

	r := newRun(f.session(), Options{Oracle: ample(f.targets...), Store: f.store})
	r.removeEntry = func(p string, dir bool) error {
		if filepath.Base(p) == "extra1.txt" {
			return errors.New("device busy")
		}
		return removeEntry(p, dir)
	}

	res := runWith(context.Background(), r)

	require.Equal(t, OutcomeDone, res.Outcome)
	stuck := filepath.Join(f.targets[0], "extra1.txt")
	assert.Equal(t, []FailedItem{{Path: stuck, Reason: ReasonDeleteFailed}}, res.Failed)
	assert.FileExists(t, stuck)
	assert.NoFileExists(t, filepath.Join(f.targets[0], "extra2.txt"))
}

func TestRun_SymlinkFailureRecorded(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 4)
	require.NoError(t, os.Symlink("a.txt", filepath.Join(f.src, "b-link")))
	writeFile(t, f.src, "c.txt", 4)

	r := newRun(f.session(), Options{Oracle: ample(f.targets...)})
	r.symlink = func(string, string) error { return errInjected }

	res := runWith(context.Background(), r)

	require.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, []FailedItem{{Path: filepath.Join(f.src, "b-link"), Reason: ReasonSymlinkFailed}}, res.Failed)
	assert.Equal(t, int64(2), res.Items)
	assert.Equal(t, int64(8), res.Bytes)
	assert.FileExists(t, filepath.Join(f.targets[0], "c.txt"))
	_, err := os.Lstat(filepath.Join(f.targets[0], "b-link"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSyncFile_SizeErrorRecorded(t *testing.T) {
	f := newFixture(t, 1)
	r := newRun(f.session(), Options{Oracle: ample(f.targets...)})

	// Listed by the directory scan, gone by the time it is read.
	gone := filepath.Join(f.src, "gone.txt")
	res, err := r.syncFile(context.Background(), gone, filepath.Join(f.targets[0], "gone.txt"))

	require.NoError(t, err)
	assert.False(t, res.ok)
	assert.False(t, res.counted)
	assert.Equal(t, []FailedItem{{Path: gone, Reason: ReasonSizeError}}, r.failed)
}

func TestSyncDirectory_DestDirUncreatable(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "blocked/x.txt", 4)
	writeFile(t, f.src, "open/y.txt", 4)

	rec := newRecorder(t)
	r := newRun(f.session(), Options{Events: rec.ch, Oracle: ample(f.targets...)})
	ctx := context.Background()
	require.NoError(t, r.ensureInitialized(ctx, r.root()))
	r.cursor = newCursor(r.sess.Source, "")

	// A file where the destination directory belongs.
	blocker := writeFile(t, f.targets[0], "blocked", 1)

	require.NoError(t, r.syncDirectory(ctx, filepath.Join(f.src, "blocked")))
	require.NoError(t, r.syncDirectory(ctx, filepath.Join(f.src, "open")))
	evs := rec.events()

	assert.True(t, hasLog(evs, "Cannot create dest dir"))
	for _, ev := range ofType(evs, event.Status) {
		assert.NotEqual(t, "Deleting...", ev.Message)
	}
	assert.Equal(t, []FailedItem{{Path: filepath.Join(f.src, "blocked", "x.txt"), Reason: ReasonCopyFailed}}, r.failed)
	info, err := os.Stat(blocker)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.FileExists(t, filepath.Join(f.targets[0], "open", "y.txt"))
}

func TestRun_SwitchedTargetUnusable(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 50)
	blocker := writeFile(t, filepath.Dir(f.src), "blocker", 1)

	sess := f.session()
	sess.Targets = append(sess.Targets, filepath.Join(blocker, "tgt"))

	rec := newRecorder(t)
	res := Run(context.Background(), sess, Options{
		Events: rec.ch,
		Oracle: capacityOracle{f.targets[0]: 10},
	})
	evs := rec.events()

	assert.Equal(t, OutcomeError, res.Outcome)
	require.ErrorIs(t, res.Err, ErrTargetInit)
	switches := ofType(evs, event.TargetSwitch)
	require.Len(t, switches, 1)
	assert.Equal(t, 1, switches[0].Index)
	require.NotEmpty(t, ofType(evs, event.Error))
	assert.Equal(t, event.Error, evs[len(evs)-1].Type)
}

func TestCopyOnce_ShortCopyRetried(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 4)

	sess := f.session()
	sess.Settings.Retries = 2
	r := newRun(sess, Options{Oracle: ample(f.targets...)})
	calls := 0
	r.copyFile = func(p platform.CopyFileParams) (platform.CopyResult, error) {
		calls++
		if calls == 1 {
			// Source truncated under us: fewer bytes than stat reported.
			return platform.CopyResult{BytesWritten: 2}, nil
		}
		return platform.CopyFile(p)
	}

	res := runWith(context.Background(), r)

	require.Equal(t, OutcomeDone, res.Outcome)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, calls)
	data, err := os.ReadFile(filepath.Join(f.targets[0], "a.txt"))
	require.NoError(t, err)
	assert.Len(t, data, 4)
}

func TestCopyOnce_ShortCopyNeverInstalled(t *testing.T) {
	f := newFixture(t, 1)
	writeFile(t, f.src, "a.txt", 4)

	r := newRun(f.session(), Options{Oracle: ample(f.targets...)})
	r.copyFile = func(platform.CopyFileParams) (platform.CopyResult, error) {
		return platform.CopyResult{BytesWritten: 1}, nil
	}

	err := r.copyOnce(context.Background(), filepath.Join(f.src, "a.txt"), filepath.Join(f.targets[0], "a.txt"), statOf(t, filepath.Join(f.src, "a.txt")))

	require.ErrorIs(t, err, errShortCopy)
	assert.NoFileExists(t, filepath.Join(f.targets[0], "a.txt"))
}

func statOf(t *testing.T, p string) os.FileInfo {
	t.Helper()
	info, err := os.Lstat(p)
	require.NoError(t, err)
	return info
}
