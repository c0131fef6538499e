// Package checkpoint persists the resume point of a sync run.
//
// The record holds exactly two fields: the last source path that completed
// and the index of the target that was active when it did. It is written to a
// temporary file and renamed into place so readers never see a partial write.
package checkpoint

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// ErrInvalid marks a checkpoint file that exists but does not have the
// expected shape. Callers treat it as "no checkpoint".
var ErrInvalid = errors.New("invalid checkpoint")

// State is the persisted resume point. A nil LastProcessed means a fresh start.
type State struct {
	LastProcessed *string `json:"last_processed"`
	TargetIndex   int     `json:"target_index_for_last"`
}

// Fresh returns the state of a run that has not completed anything.
func Fresh() State {
	return State{}
}

// At returns a state recording path as completed on target index.
func At(path string, index int) State {
	return State{LastProcessed: &path, TargetIndex: index}
}

// Resuming reports whether the state carries a resume point.
func (s State) Resuming() bool {
	return s.LastProcessed != nil
}

// Last returns the recorded path, or "" on a fresh start.
func (s State) Last() string {
	if s.LastProcessed == nil {
		return ""
	}
	return *s.LastProcessed
}

// Store reads and writes one checkpoint file.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for path on the OS filesystem.
func NewStore(path string) *Store {
	return NewStoreFs(afero.NewOsFs(), path)
}

// NewStoreFs returns a Store for path on fs.
func NewStoreFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file returns Fresh() and a nil error.
// A file that cannot be parsed or has the wrong shape returns Fresh() and an
// error wrapping ErrInvalid; I/O failures are returned wrapped as well.
// In every error case the returned state is usable as a fresh start.
func (s *Store) Load() (State, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Fresh(), nil
		}
		return Fresh(), fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	st, err := decode(data)
	if err != nil {
		return Fresh(), fmt.Errorf("%w: %s: %w", ErrInvalid, s.path, err)
	}
	return st, nil
}

// decode accepts only an object with exactly the two known keys, a string or
// null path, and an integer index.
func decode(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, err
	}
	if raw == nil {
		return State{}, errors.New("not an object")
	}
	if len(raw) != 2 {
		return State{}, fmt.Errorf("expected 2 fields, got %d", len(raw))
	}

	lastRaw, ok := raw["last_processed"]
	if !ok {
		return State{}, errors.New("missing last_processed")
	}
	idxRaw, ok := raw["target_index_for_last"]
	if !ok {
		return State{}, errors.New("missing target_index_for_last")
	}

	var st State
	if !bytes.Equal(bytes.TrimSpace(lastRaw), []byte("null")) {
		var last string
		if err := json.Unmarshal(lastRaw, &last); err != nil {
			return State{}, fmt.Errorf("last_processed: %w", err)
		}
		st.LastProcessed = &last
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(idxRaw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return State{}, fmt.Errorf("target_index_for_last: %w", err)
	}
	idx, ok := v.(json.Number)
	if !ok {
		return State{}, fmt.Errorf("target_index_for_last: not a number: %s", idxRaw)
	}
	n, err := idx.Int64()
	if err != nil {
		return State{}, fmt.Errorf("target_index_for_last: not an integer: %s", idx)
	}
	st.TargetIndex = int(n)
	return st, nil
}

// Save writes st atomically: a uniquely named temp file in the same
// directory is written, synced, and renamed over the checkpoint.
func (s *Store) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.New().String()[:8]))
	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create checkpoint tmp: %w", err)
	}
	defer func() { _ = s.fs.Remove(tmpPath) }() // no-op after a successful rename

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync checkpoint tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint tmp: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Remove deletes the checkpoint file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// JobID computes a deterministic id for a source and its ordered targets.
func JobID(source string, targets []string) string {
	h := blake3.New()
	h.Write([]byte(source))
	for _, t := range targets {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// DefaultPath returns where the checkpoint for a job lives when the caller
// does not name one: $XDG_STATE_HOME/span/<job>.json, falling back to
// ~/.local/state and finally the temp dir.
func DefaultPath(source string, targets []string) string {
	name := JobID(source, targets) + ".json"
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "span", name)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "span", name)
	}
	return filepath.Join(os.TempDir(), "span-"+name)
}
