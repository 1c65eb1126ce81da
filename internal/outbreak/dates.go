package outbreak

import (
	"strings"
	"time"
)

// Bulletin dates are published as "27 February 2025", occasionally "27 Feb 2025".
var dateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate converts a bulletin date string into a calendar date (UTC midnight).
// The boolean is false when no supported layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Cutoff returns the later of floor and the latest stored date.
func Cutoff(floor time.Time, latest time.Time, haveLatest bool) time.Time {
	if haveLatest && latest.After(floor) {
		return latest
	}
	return floor
}
