package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  items 48,917 (12 unchanged)  size 2.1 GB  avg 641 MB/s  time 3m 17s  switches 1  errors 0
// Unchanged files are part of the item total.
func CompletionSummary(outcome string, snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.ItemsFailed > 0 || outcome != "done" {
		icon = "✗"
	}

	items := FormatCount(snap.ItemsDone)
	if snap.ItemsSkipped > 0 {
		items += fmt.Sprintf(" (%s unchanged)", FormatCount(snap.ItemsSkipped))
	}

	base := fmt.Sprintf("%s %s  items %s  size %s  avg %s  time %s",
		outcome,
		icon,
		items,
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.Deleted > 0 {
		base += fmt.Sprintf("  deleted %s", FormatCount(snap.Deleted))
	}
	if snap.TargetSwitches > 0 {
		base += fmt.Sprintf("  switches %d", snap.TargetSwitches)
	}

	base += fmt.Sprintf("  errors %d", snap.ItemsFailed)

	return base
}

// FailureReport lists failed items one per line, or returns "" when there
// are none.
func FailureReport(failed []event.Failure) string {
	if len(failed) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d item(s) failed:\n", len(failed))
	for _, f := range failed {
		fmt.Fprintf(&b, "  %s: %s\n", f.Path, f.Reason)
	}
	return b.String()
}
