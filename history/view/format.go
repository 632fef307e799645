package view

import (
	"fmt"
	"time"
)

// TimeFormat renders timestamps in rows and bars. Times are always UTC.
const TimeFormat = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// Clock formats d as hh:mm:ss. Hours are not wrapped at a day.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// Humanize formats d for tooltips: "350ms", "12 seconds", "4 minutes",
// "03:15" or "2 days 03:15".
func Humanize(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int64(d/time.Minute))
	}

	hours := int64(d / time.Hour)
	minutes := int64(d/time.Minute) % 60
	if hours < 24 {
		return fmt.Sprintf("%02d:%02d", hours, minutes)
	}
	return fmt.Sprintf("%d days %02d:%02d", hours/24, hours%24, minutes)
}
