package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/config"
	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/space"
)

// recorder collects every event a run emits.
type recorder struct {
	ch   chan event.Event
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	evs []event.Event
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{
		ch:   make(chan event.Event, 4096),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for ev := range r.ch {
			r.mu.Lock()
			r.evs = append(r.evs, ev)
			r.mu.Unlock()
		}
	}()
	t.Cleanup(func() { r.events() })
	return r
}

// events closes the channel and returns everything received. Call it only
// after Run has returned.
func (r *recorder) events() []event.Event {
	r.once.Do(func() { close(r.ch) })
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.evs...)
}

func ofType(evs []event.Event, typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// copied returns the source paths that had a copy attempt.
func copied(evs []event.Event) []string {
	var out []string
	for _, ev := range ofType(evs, event.Status) {
		if strings.HasPrefix(ev.Message, "Copying") {
			out = append(out, ev.Path)
		}
	}
	return out
}

func hasLog(evs []event.Event, substr string) bool {
	for _, ev := range ofType(evs, event.Log) {
		if strings.Contains(ev.Message, substr) {
			return true
		}
	}
	return false
}

// capacityOracle reports each target as a fixed-size disk whose used space
// is the sum of the regular files under it.
type capacityOracle map[string]uint64

func (o capacityOracle) Usage(path string) (space.Usage, error) {
	total, ok := o[path]
	if !ok {
		return space.Usage{}, space.ErrUnknown
	}
	var used uint64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil //nolint:nilerr // missing entries count as empty
		}
		if info, err := d.Info(); err == nil {
			used += uint64(info.Size())
		}
		return nil
	})
	if used > total {
		used = total
	}
	return space.Usage{Total: total, Free: total - used}, nil
}

// unknownOracle never knows.
type unknownOracle struct{}

func (unknownOracle) Usage(string) (space.Usage, error) { return space.Usage{}, space.ErrUnknown }

// ample gives every target a terabyte.
func ample(targets ...string) capacityOracle {
	o := capacityOracle{}
	for _, t := range targets {
		o[t] = 1 << 40
	}
	return o
}

func testSettings() config.Settings {
	return config.Settings{FreeSpacePercent: 0, Retries: 1, RetryDelay: 0}
}

type fixture struct {
	src     string
	targets []string
	store   *checkpoint.Store
}

func newFixture(t *testing.T, ntargets int) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		src:   filepath.Join(dir, "src"),
		store: checkpoint.NewStore(filepath.Join(dir, "state", "job.json")),
	}
	require.NoError(t, os.MkdirAll(f.src, 0o755))
	for i := range ntargets {
		tgt := filepath.Join(dir, "tgt"+string(rune('0'+i)))
		require.NoError(t, os.MkdirAll(tgt, 0o755))
		f.targets = append(f.targets, tgt)
	}
	return f
}

func (f fixture) session() Session {
	return Session{Source: f.src, Targets: f.targets, Settings: testSettings()}
}

// writeFile creates root/rel with size bytes and an mtime in the past.
func writeFile(t *testing.T, root, rel string, size int) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(p, data, 0o644))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(p, old, old))
	return p
}

// mirrorFile copies srcRoot/rel to dstRoot/rel with the same mtime.
func mirrorFile(t *testing.T, srcRoot, dstRoot, rel string) {
	t.Helper()
	src := filepath.Join(srcRoot, filepath.FromSlash(rel))
	dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, data, 0o644))
	info, err := os.Stat(src)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(dst, info.ModTime(), info.ModTime()))
}
