package utils

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------

// Tier-1 lifetimes per interval. Daily bars change at most once per session;
// real-time quotes are refreshed more often.
const (
	DefaultRealTimeTTL = 15 * time.Minute
	DefaultDailyTTL    = 12 * time.Hour
	DefaultIntradayTTL = 5 * time.Minute
)

// Default US equity session.
const (
	DefaultMarketTimezone = "America/New_York"
	DefaultMarketOpen     = "09:30"
	DefaultMarketClose    = "16:00"
)

// maxCalendarLookback bounds the backward walk when searching a trading day.
const maxCalendarLookback = 31

// -----------------------------------------------------------------------------

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// DateOf returns midnight of t's calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// AtClock returns the wall-clock instant offset on t's local date. It is
// built from calendar fields so DST transition days keep their local time.
func AtClock(t time.Time, offset time.Duration, loc *time.Location) time.Time {
	t = t.In(loc)
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, loc)
}
