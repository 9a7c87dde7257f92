package session

import (
	"fmt"
	"strings"
)

// FormatDuration renders elapsed seconds as an ISO-8601 duration string,
// e.g. 3665 -> "PT1H1M5S". Zero components are omitted, except that the
// seconds component is always present when hours and minutes are both zero,
// so zero elapsed time reads "PT0S".
func FormatDuration(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		fmt.Fprintf(&b, "%dS", seconds)
	}
	return b.String()
}
