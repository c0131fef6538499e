package stats

import "fmt"

// Tally counts items and bytes written to one destination. The engine keeps
// one for the whole run and one for the active target.
type Tally struct {
	Items    int64
	Bytes    int64
	LastItem string
}

// Add records one successfully processed item.
func (t *Tally) Add(path string, size int64) {
	t.Items++
	t.Bytes += size
	t.LastItem = path
}

// Reset zeroes the tally. LastItem reads "N/A" until the next Add.
func (t *Tally) Reset() {
	*t = Tally{LastItem: "N/A"}
}

// FormatBytes returns a human-readable byte count using IEC units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

var sizeNames = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// HumanSize formats a byte count with two decimals, as shown in copy status
// lines ("0B", "512.00 B", "1.50 KB").
func HumanSize(b int64) string {
	if b == 0 {
		return "0B"
	}
	v := float64(b)
	i := 0
	for v >= 1024 && i < len(sizeNames)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, sizeNames[i])
}
