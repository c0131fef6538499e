package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// tempSuffix marks in-flight copies on a target.
const tempSuffix = ".span-tmp"

// tempFiles tracks in-flight temporary copies so an interrupted run can
// remove them on the way out.
type tempFiles struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// next returns a fresh temporary name beside dst and registers it.
func (tf *tempFiles) next(dst string) string {
	name := fmt.Sprintf(".%s.%s%s", filepath.Base(dst), uuid.New().String()[:8], tempSuffix)
	p := filepath.Join(filepath.Dir(dst), name)
	tf.mu.Lock()
	defer tf.mu.Unlock()
	if tf.paths == nil {
		tf.paths = make(map[string]struct{})
	}
	tf.paths[p] = struct{}{}
	return p
}

// release forgets p and removes it if it still exists.
func (tf *tempFiles) release(p string) {
	tf.mu.Lock()
	delete(tf.paths, p)
	tf.mu.Unlock()
	_ = os.Remove(p) // no-op after a successful rename
}

// cleanup removes every registered file.
func (tf *tempFiles) cleanup() {
	tf.mu.Lock()
	paths := make([]string, 0, len(tf.paths))
	for p := range tf.paths {
		paths = append(paths, p)
	}
	tf.paths = nil
	tf.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
