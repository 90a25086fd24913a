package classify

import "github.com/newthinker/candlescope/internal/core"

// FormatTimestamp renders a timestamp like "Jan 2, 2024, 09:15 AM".
// Unparseable input is returned as is.
func FormatTimestamp(s string) string {
	t, ok := core.ParseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format("Jan 2, 2006, 03:04 PM")
}

// FormatDate renders only the date part, e.g. "2024-01-02".
func FormatDate(s string) string {
	t, ok := core.ParseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format("2006-01-02")
}

// FormatClock renders only the time of day, e.g. "09:15:00".
func FormatClock(s string) string {
	t, ok := core.ParseTimestamp(s)
	if !ok {
		return ""
	}
	return t.Format("15:04:05")
}
