package ui

import (
	"math"

	"github.com/bamsammich/span/internal/stats"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSpark draws the collector's per-second throughput as width block
// characters, newest on the right. Seconds not yet sampled are blank, and
// any nonzero sample sits at least one step above the floor so a trickle
// stays visible next to a burst.
func RenderSpark(c *stats.Collector, width int) string {
	if width <= 0 {
		return ""
	}
	samples := c.SparklineData(width)

	peak := 0.0
	for _, v := range samples {
		peak = max(peak, v)
	}

	out := make([]rune, 0, width)
	for range width - len(samples) {
		out = append(out, ' ')
	}
	for _, v := range samples {
		out = append(out, sparkRune(v, peak))
	}
	return string(out)
}

func sparkRune(v, peak float64) rune {
	if v <= 0 || peak <= 0 {
		return sparkBlocks[0]
	}
	top := len(sparkBlocks) - 1
	step := int(math.Ceil(v / peak * float64(top)))
	return sparkBlocks[min(step, top)]
}
