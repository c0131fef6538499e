package ui

import (
	"io"
	"strings"

	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
	// Failed returns the failures reported by the terminal event.
	Failed() []event.Failure
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Source    string // stripped from displayed paths
	IsTTY     bool
	Quiet     bool
	Width     int
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	st := newRunState(cfg.Stats, cfg.Source)
	if cfg.Quiet {
		return &quietPresenter{runState: st}
	}
	if !cfg.IsTTY {
		return &plainPresenter{runState: st, w: cfg.Writer, errW: cfg.ErrWriter}
	}
	width := cfg.Width
	if width <= 0 {
		width = 80
	}
	return &ttyPresenter{runState: st, w: cfg.ErrWriter, width: width}
}

// itemKind is what the engine did with an item, learned from its status
// events.
type itemKind int

const (
	kindOther itemKind = iota
	kindFile           // regular file, not copied yet
	kindCopy           // regular file being copied
)

// runState folds engine events into the collector. Presenters embed it.
type runState struct {
	stats    *stats.Collector
	source   string
	pending  map[string]itemKind
	sizes    map[string]string
	terminal *event.Event
}

func newRunState(c *stats.Collector, source string) *runState {
	return &runState{
		stats:   c,
		source:  source,
		pending: make(map[string]itemKind),
		sizes:   make(map[string]string),
	}
}

// observe records ev and, for ItemDone, returns how the item was handled.
func (s *runState) observe(ev event.Event) itemKind {
	switch ev.Type {
	case event.Status:
		if ev.Scope != event.ScopeItem {
			return kindOther
		}
		switch {
		case ev.Message == "Processing file...":
			s.pending[ev.Path] = kindFile
		case strings.HasPrefix(ev.Message, "Copying"):
			s.pending[ev.Path] = kindCopy
			s.sizes[ev.Path] = sizeHint(ev.Message)
		case ev.Message == "Deleting...":
			s.stats.AddDeleted(1)
		}
	case event.ItemDone:
		kind := s.pending[ev.Path]
		delete(s.pending, ev.Path)
		if ev.Success && kind == kindFile {
			s.stats.AddSkipped(1)
		}
		return kind
	case event.ProgressUpdate:
		s.stats.SetProgress(ev.Items, ev.Bytes)
	case event.TargetSwitch:
		s.stats.SetTarget(ev.Index)
		s.stats.AddTargetSwitches(1)
	case event.Done, event.Cancelled, event.Error:
		if ev.Type != event.Error {
			s.stats.SetProgress(ev.Items, ev.Bytes)
		}
		s.stats.AddFailed(int64(len(ev.Failed)))
		term := ev
		s.terminal = &term
	}
	return kindOther
}

// takeSize returns and forgets the size hint recorded for path.
func (s *runState) takeSize(path string) string {
	hint := s.sizes[path]
	delete(s.sizes, path)
	return hint
}

func (s *runState) rel(path string) string {
	return StripRoot(s.source, path)
}

// Summary implements Presenter.
func (s *runState) Summary() string {
	return CompletionSummary(s.outcome(), s.stats.Snapshot())
}

// Failed implements Presenter.
func (s *runState) Failed() []event.Failure {
	if s.terminal == nil {
		return nil
	}
	return s.terminal.Failed
}

func (s *runState) outcome() string {
	if s.terminal == nil {
		return "stopped"
	}
	switch s.terminal.Type {
	case event.Cancelled:
		return "cancelled"
	case event.Error:
		return "error"
	default:
		return "done"
	}
}

// sizeHint extracts "10.00 B" from "Copying (10.00 B)...".
func sizeHint(msg string) string {
	open := strings.IndexByte(msg, '(')
	end := strings.LastIndexByte(msg, ')')
	if open < 0 || end <= open {
		return ""
	}
	return msg[open+1 : end]
}
