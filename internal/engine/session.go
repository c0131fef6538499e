package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/config"
	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/metrics"
	"github.com/bamsammich/span/internal/space"
)

// Run-fatal conditions.
var (
	ErrNoTargets         = errors.New("no targets configured")
	ErrTargetInit        = errors.New("cannot prepare target")
	ErrOutOfTargets      = errors.New("ran out of target disks")
	ErrNewTargetTooSmall = errors.New("insufficient space on freshly switched target")
	ErrTargetOverlap     = errors.New("target overlaps source")
)

// Failure reasons recorded against items.
const (
	ReasonOutOfSpace    = "Ran out of target space"
	ReasonNewTargetFull = "Insufficient space on new target"
	ReasonCopyFailed    = "Copy failed"
	ReasonUnknownType   = "Unknown type"
	ReasonSizeError     = "Size error"
	ReasonDeleteFailed  = "Failed delete"
	ReasonSymlinkFailed = "Symlink fail"
	ReasonDirFailed     = "Dir fail"
	ReasonCannotListSrc = "Cannot list source"
	ReasonPathError     = "Path error"
)

// Session is the caller-supplied description of one run.
type Session struct {
	Source         string
	Targets        []string
	Settings       config.Settings
	CheckpointPath string
}

// Options carries the run's collaborators. Every field is optional.
type Options struct {
	Events  chan<- event.Event
	Pauser  *Pauser
	Logger  *slog.Logger
	Oracle  space.Oracle
	Store   *checkpoint.Store // overrides Session.CheckpointPath
	Limiter *rate.Limiter
	Metrics metrics.SyncMetrics

	// PollInterval is the pause polling period; zero means 250ms.
	PollInterval time.Duration
}

// FailedItem is one per-item failure recorded during a run.
type FailedItem struct {
	Path   string
	Reason string
}

func (f FailedItem) String() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Reason)
}

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeCancelled
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of a run.
type Result struct {
	Outcome Outcome
	Items   int64
	Bytes   int64
	Failed  []FailedItem
	Err     error
}
