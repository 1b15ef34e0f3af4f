package gateway

import (
	"time"

	"market-engine/src/interfaces"
	"market-engine/src/models"
	"market-engine/src/utils"
)

// -----------------------------------------------------------------------------
// Freshness
//
// A point is complete when it covers the newest session that can exist as of
// the reference instant, judged by the market's trading days:
//
//   - non-trading day:           point date >= last trading day
//   - trading day, before close: point date >= last trading day before today
//   - trading day, after close:  point date >= yesterday (publication lag)
//
// A plain "has yesterday's data" check would re-fetch all weekend long.
// -----------------------------------------------------------------------------

const dateLayout = "2006-01-02"

// RequiredDate is the oldest local date a point may carry and still be
// complete as of asOf. It is midnight in the calendar's location.
func RequiredDate(cal interfaces.ITradingCalendar, asOf time.Time) time.Time {
	loc := cal.Location()
	day := utils.DateOf(asOf, loc)

	switch {
	case !cal.IsTradingDay(day):
		return cal.LastTradingDay(asOf)
	case asOf.Before(cal.SessionClose(day)):
		return cal.LastTradingDay(day.AddDate(0, 0, -1))
	default:
		return day.AddDate(0, 0, -1)
	}
}

// IsComplete applies the trading-day rule to a single timestamp.
func IsComplete(cal interfaces.ITradingCalendar, ts, asOf time.Time) bool {
	pointDay := utils.DateOf(ts, cal.Location())
	return !pointDay.Before(RequiredDate(cal, asOf))
}

// -----------------------------------------------------------------------------

// firstSession returns the first trading date whose session closes after
// start, or false when none falls on or before limit's date.
func firstSession(cal interfaces.ITradingCalendar, start, limit time.Time) (time.Time, bool) {
	loc := cal.Location()
	last := utils.DateOf(limit, loc)
	for day := utils.DateOf(start, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		if cal.IsTradingDay(day) && cal.SessionClose(day).After(start) {
			return day, true
		}
	}
	return time.Time{}, false
}

// seriesComplete reports whether stored points cover [start, asOf]: every
// trading day from the first session of the range up to the required date
// must carry at least one point, and the last point must be complete.
func seriesComplete(cal interfaces.ITradingCalendar, points []models.MPricePoint, start, asOf time.Time) bool {
	if len(points) == 0 {
		return false
	}
	if !IsComplete(cal, points[len(points)-1].Timestamp, asOf) {
		return false
	}
	first, ok := firstSession(cal, start, asOf)
	if !ok {
		return true
	}

	loc := cal.Location()
	covered := make(map[string]struct{}, len(points))
	for _, p := range points {
		covered[p.Timestamp.In(loc).Format(dateLayout)] = struct{}{}
	}
	required := RequiredDate(cal, asOf)
	for day := first; !day.After(required); day = day.AddDate(0, 0, 1) {
		if !cal.IsTradingDay(day) {
			continue
		}
		if _, ok := covered[day.Format(dateLayout)]; !ok {
			return false
		}
	}
	return true
}
