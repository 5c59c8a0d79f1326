package actions

import (
	"fmt"
	"time"
)

// FormatRemaining renders a countdown rounded up to whole seconds, as "Xm Ys" or "Ys".
// Durations at or below zero render as "0s".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	seconds := int64((d + time.Second - 1) / time.Second)
	minutes := seconds / 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}
