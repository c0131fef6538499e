package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bamsammich/span/internal/event"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth  = 20
	statusMinRedraw = 50 * time.Millisecond
)

// DetectTerminal reports whether f is a terminal and, if so, its width in
// columns (80 when the size cannot be read). NewPresenter picks the tty
// presenter from the first value and sizes the status line with the second.
func DetectTerminal(f *os.File) (bool, int) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return false, 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		w = 80
	}
	return true, w
}

// ttyPresenter prints a scrolling feed of copied, failed and deleted items
// with a single status line redrawn in place below it.
type ttyPresenter struct {
	*runState
	w     io.Writer
	width int

	current  string // item the engine is working on
	drawn    bool
	lastDraw time.Time
}

func (p *ttyPresenter) Run(events <-chan event.Event) error {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clear()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDraw()

		case <-redrawTicker.C:
			p.draw()

		case <-secTicker.C:
			p.stats.Tick()
		}
	}
}

func (p *ttyPresenter) handleEvent(ev event.Event) {
	kind := p.observe(ev)
	switch ev.Type {
	case event.ItemStart:
		p.current = ev.Path

	case event.ItemDone:
		size := p.takeSize(ev.Path)
		switch {
		case !ev.Success:
			p.printLine("✗  %s  failed", p.styledPath(ev.Path))
		case kind == kindCopy:
			p.printLine("✓  %s  %s%s%s", p.styledPath(ev.Path), ansiDim, size, ansiReset)
		}

	case event.Status:
		if ev.Message == "Deleting..." {
			p.printLine("×  %s  %s(deleted)%s", ev.Path, ansiDim, ansiReset)
		}

	case event.TargetFullStats:
		p.printLine("%starget full%s  %s  %s items  %s",
			ansiBold, ansiReset, ev.Path, FormatCount(ev.Items), FormatBytes(ev.Bytes))

	case event.TargetSwitch:
		p.printLine("%s⇒ target #%d%s  %s", ansiBold, ev.Index+1, ansiReset, ev.Path)

	case event.Error:
		p.printLine("%serror:%s %s", ansiBold, ansiReset, ev.Message)
	}
}

// printLine writes a feed line above the status line.
func (p *ttyPresenter) printLine(format string, args ...any) {
	p.clear()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.draw()
}

func (p *ttyPresenter) maybeDraw() {
	if time.Since(p.lastDraw) < statusMinRedraw {
		return
	}
	p.draw()
}

func (p *ttyPresenter) draw() {
	p.clear()

	snap := p.stats.Snapshot()
	spark := RenderSpark(p.stats, sparklineWidth)
	head := fmt.Sprintf("%s  %s  %s  %s items  target #%d",
		spark,
		FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesCopied),
		FormatCount(snap.ItemsDone),
		snap.TargetIndex+1,
	)

	line := head
	if p.current != "" {
		room := p.width - len([]rune(head)) - 2
		if room > 10 {
			line += "  " + ansiDim + truncPath(p.rel(p.current), room) + ansiReset
		}
	}
	fmt.Fprintln(p.w, line)

	p.drawn = true
	p.lastDraw = time.Now()
}

func (p *ttyPresenter) clear() {
	if !p.drawn {
		return
	}
	// Move cursor up one line and clear to end of screen.
	fmt.Fprint(p.w, "\033[1A\033[J")
	p.drawn = false
}

// styledPath dims the directory portion of the source-relative path so the
// file name stands out.
func (p *ttyPresenter) styledPath(path string) string {
	path = p.rel(path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-maxLen+3:]
}

// StripRoot removes a root prefix from a path, returning a clean relative path.
func StripRoot(root, path string) string {
	if root == "" {
		return path
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if strings.HasPrefix(path, root) {
		return path[len(root):]
	}
	return path
}
