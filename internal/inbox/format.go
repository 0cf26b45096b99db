package inbox

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// PreviewLength is the rune limit for conversation previews.
const PreviewLength = 50

// FormatTimestamp renders t relative to now: "Just now" under a minute,
// minutes and hours under a day, and an absolute local date-time otherwise.
func FormatTimestamp(now, t time.Time) string {
	diff := now.Sub(t)
	if diff < 24*time.Hour {
		if diff < time.Hour {
			mins := int(diff / time.Minute)
			if mins < 1 {
				return "Just now"
			}
			return fmt.Sprintf("%d min ago", mins)
		}
		hours := int(diff / time.Hour)
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}

// Truncate shortens text to max runes, appending "..." when it cut anything.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
