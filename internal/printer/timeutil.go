package printer

import (
	"time"
)

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatDuration returns a batch duration rounded to the second, or "-" when the
// batch has not finished.
func FormatDuration(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}

	d := end.Sub(*start)
	if d < 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	return d.Round(time.Second).String()
}
