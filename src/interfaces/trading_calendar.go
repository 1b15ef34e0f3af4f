package interfaces

import "time"

// -----------------------------------------------------------------------------
// ITradingCalendar decides trading days and session boundaries. Swap in a
// holiday-aware implementation without touching the gateway.
// -----------------------------------------------------------------------------

type ITradingCalendar interface {
	Location() *time.Location
	IsTradingDay(t time.Time) bool
	IsOpenOnMinute(t time.Time) bool
	LastTradingDay(ref time.Time) time.Time
	SessionClose(day time.Time) time.Time
}
