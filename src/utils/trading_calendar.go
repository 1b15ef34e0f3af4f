package utils

import (
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers trading-day questions for one market.
//
// With Fallback set only weekends are closed; holidays are not modeled.
// Otherwise the scmhub/calendar exchange calendar decides business days.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
	Open     time.Duration // session open, offset from local midnight
	Close    time.Duration // session close, offset from local midnight
}

// -----------------------------------------------------------------------------

// NewWeekendCalendar returns the plain Mon-Fri calendar.
func NewWeekendCalendar(loc *time.Location, open, close time.Duration) *TradingCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &TradingCalendar{Fallback: true, Timezone: loc, Open: open, Close: close}
}

// NewExchangeCalendar returns a holiday-aware calendar for the given MIC
// (ISO 10383, e.g. "xnys"). Unknown MICs fall back to weekend-only.
func NewExchangeCalendar(mic string, open, close time.Duration) *TradingCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s'. Using weekend-only fallback.", mic)
		nyLoc, _ := time.LoadLocation(DefaultMarketTimezone)
		return NewWeekendCalendar(nyLoc, open, close)
	}
	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc, Open: open, Close: close}
}

// -----------------------------------------------------------------------------

// Location returns the market's time zone.
func (tc *TradingCalendar) Location() *time.Location {
	if tc.Timezone == nil {
		return time.UTC
	}
	return tc.Timezone
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	date = date.In(tc.Location())

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	t = t.In(tc.Location())

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		return !t.Before(AtClock(t, tc.Open, tc.Location())) && t.Before(AtClock(t, tc.Close, tc.Location()))
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// LastTradingDay walks backward from ref's local date until it finds a
// trading day, and returns that date at local midnight.
func (tc *TradingCalendar) LastTradingDay(ref time.Time) time.Time {
	day := DateOf(ref, tc.Location())
	for i := 0; i < maxCalendarLookback && !tc.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// SessionClose returns the closing instant of the session on day's date.
func (tc *TradingCalendar) SessionClose(day time.Time) time.Time {
	return AtClock(day, tc.Close, tc.Location())
}
