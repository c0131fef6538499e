package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often a paused run re-checks its signals.
const DefaultPollInterval = 250 * time.Millisecond

// Pauser is the pause signal shared between a controller and a run. The
// zero value is not paused.
type Pauser struct {
	paused atomic.Bool
}

func (p *Pauser) Pause()  { p.paused.Store(true) }
func (p *Pauser) Resume() { p.paused.Store(false) }

// Toggle flips the pause state and returns the new value.
func (p *Pauser) Toggle() bool {
	for {
		old := p.paused.Load()
		if p.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Paused reports whether the run should hold. A nil Pauser is never paused.
func (p *Pauser) Paused() bool {
	return p != nil && p.paused.Load()
}

// waitWhilePaused blocks while p is paused, waking every interval to
// re-check both signals. It returns ctx.Err() if the run was cancelled.
func waitWhilePaused(ctx context.Context, p *Pauser, interval time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Paused() {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for p.Paused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return ctx.Err()
}
