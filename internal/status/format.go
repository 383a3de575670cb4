// Package status renders the deterministic text block returned by the
// /debug command: turn-engine phase, active agent, current model and
// provider adapter, and running token/cost totals.
package status

import (
	"fmt"
	"time"
)

// FormatContextUsageShort renders "total/limit (pct%)", degrading to "?"
// when either value is unknown.
func FormatContextUsageShort(total, limit int) string {
	totalStr := "?"
	if total > 0 {
		totalStr = shortTokenCount(total)
	}
	if limit <= 0 {
		return fmt.Sprintf("Context %s", totalStr)
	}
	limitStr := shortTokenCount(limit)
	if total <= 0 {
		return fmt.Sprintf("Context %s/%s", totalStr, limitStr)
	}
	pct := float64(total) / float64(limit) * 100
	return fmt.Sprintf("Context %s/%s (%.0f%%)", totalStr, limitStr, pct)
}

func shortTokenCount(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		v := float64(n) / 1000
		if n%1000 == 0 && n >= 10000 {
			return fmt.Sprintf("%.0fk", v)
		}
		return fmt.Sprintf("%.1fk", v)
	default:
		v := float64(n) / 1000000
		return fmt.Sprintf("%.1fm", v)
	}
}

// FormatAge renders the elapsed time since a past instant in a compact,
// human form: "just now", "5m ago", "2d ago". Negative durations (clock
// skew, not-yet-recorded timestamps) render as "unknown".
func FormatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
	return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
}
