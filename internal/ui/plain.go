package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/span/internal/event"
)

// plainPresenter outputs one line per copied, failed or deleted item to
// stdout, and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	*runState
	w    io.Writer
	errW io.Writer
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	kind := p.observe(ev)
	switch ev.Type {
	case event.ItemDone:
		size := p.takeSize(ev.Path)
		switch {
		case !ev.Success:
			fmt.Fprintf(p.w, "%s  failed\n", p.rel(ev.Path))
		case kind == kindCopy:
			fmt.Fprintf(p.w, "%s  %s\n", p.rel(ev.Path), size)
		}
	case event.Status:
		if ev.Message == "Deleting..." {
			fmt.Fprintf(p.w, "delete: %s\n", ev.Path)
		}
	case event.TargetFullStats:
		fmt.Fprintf(p.w, "target full: %s  items %s  size %s  last %s\n",
			ev.Path, FormatCount(ev.Items), FormatBytes(ev.Bytes), p.rel(ev.LastItem))
	case event.TargetSwitch:
		fmt.Fprintf(p.w, "target #%d: %s\n", ev.Index+1, ev.Path)
	case event.Error:
		fmt.Fprintf(p.errW, "error: %s\n", ev.Message)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s items  %s  %s  target #%d\n",
		FormatCount(snap.ItemsDone),
		FormatBytes(snap.BytesCopied),
		FormatRate(p.stats.RollingSpeed(5)),
		snap.TargetIndex+1,
	)
}
