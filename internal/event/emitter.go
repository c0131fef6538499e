package event

import (
	"log/slog"
	"time"
)

// DefaultSendTimeout bounds how long Emit waits on a full channel.
const DefaultSendTimeout = 5 * time.Second

// Emitter delivers events to a controller channel on a best-effort basis.
// A nil channel is allowed and turns every Emit into a no-op.
type Emitter struct {
	ch          chan<- Event
	logger      *slog.Logger
	sendTimeout time.Duration
	dropped     int64
	closed      bool // controller closed ch; every later event is dropped
}

// NewEmitter returns an Emitter writing to ch. Dropped events are reported
// through logger.
func NewEmitter(ch chan<- Event, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{ch: ch, logger: logger, sendTimeout: DefaultSendTimeout}
}

// SetSendTimeout changes how long Emit blocks on a full channel before
// dropping the event.
func (e *Emitter) SetSendTimeout(d time.Duration) {
	e.sendTimeout = d
}

// Dropped returns the number of events that could not be delivered.
func (e *Emitter) Dropped() int64 {
	return e.dropped
}

// Emit stamps ev and sends it. Terminal events block until delivered;
// everything else waits at most the send timeout and is then dropped.
// A channel closed by the controller drops the event instead of panicking.
func (e *Emitter) Emit(ev Event) {
	if e == nil || e.ch == nil {
		return
	}
	if e.closed {
		e.dropped++
		return
	}
	ev.Timestamp = time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.closed = true
			e.dropped++
			e.logger.Warn("event channel closed, dropping events",
				"type", ev.Type.String(), "panic", r)
		}
	}()

	select {
	case e.ch <- ev:
		return
	default:
	}

	if ev.Type.Terminal() {
		e.ch <- ev
		return
	}

	t := time.NewTimer(e.sendTimeout)
	defer t.Stop()
	select {
	case e.ch <- ev:
	case <-t.C:
		e.dropped++
		e.logger.Warn("event channel full, dropping event",
			"type", ev.Type.String(), "path", ev.Path)
	}
}
