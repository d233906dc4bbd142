package util

import (
	"fmt"
	"time"
)

// FormatDayMonth renders an instant as "DD.MM" in the given fixed civil
// offset.
func FormatDayMonth(t time.Time, offset time.Duration) string {
	t = t.UTC().Add(offset)
	return fmt.Sprintf("%02d.%02d", t.Day(), int(t.Month()))
}

// FormatDateTime renders an instant as "DD.MM HH:MM" in the given fixed civil
// offset.
func FormatDateTime(t time.Time, offset time.Duration) string {
	t = t.UTC().Add(offset)
	return fmt.Sprintf("%02d.%02d %02d:%02d", t.Day(), int(t.Month()), t.Hour(), t.Minute())
}

// Truncate shortens s to at most max runes, appending "..." when it cuts.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// PollWord returns the Russian plural form of "опрос" for a count.
func PollWord(n int) string {
	if n < 0 {
		n = -n
	}
	n %= 100
	if n >= 11 && n <= 14 {
		return "опросов"
	}
	switch n % 10 {
	case 1:
		return "опрос"
	case 2, 3, 4:
		return "опроса"
	default:
		return "опросов"
	}
}
