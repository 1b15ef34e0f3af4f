package gateway

import (
	"testing"
	"time"

	"market-engine/src/models"
	"market-engine/src/utils"
)

func newYorkCalendar(t *testing.T) *utils.TradingCalendar {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return utils.NewWeekendCalendar(loc, 9*time.Hour+30*time.Minute, 16*time.Hour)
}

func TestRequiredDate(t *testing.T) {
	cal := newYorkCalendar(t)
	ny := cal.Location()
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, ny) }

	tests := []struct {
		name string
		asOf time.Time
		want time.Time
	}{
		{"saturday needs friday", time.Date(2024, 1, 6, 12, 0, 0, 0, ny), date(2024, 1, 5)},
		{"sunday needs friday", time.Date(2024, 1, 7, 20, 0, 0, 0, ny), date(2024, 1, 5)},
		{"monday before close needs friday", time.Date(2024, 1, 8, 11, 0, 0, 0, ny), date(2024, 1, 5)},
		{"monday pre-open needs friday", time.Date(2024, 1, 8, 6, 0, 0, 0, ny), date(2024, 1, 5)},
		{"wednesday before close needs tuesday", time.Date(2024, 1, 10, 15, 59, 0, 0, ny), date(2024, 1, 9)},
		{"wednesday after close allows one day lag", time.Date(2024, 1, 10, 16, 0, 0, 0, ny), date(2024, 1, 9)},
		{"monday after close allows sunday", time.Date(2024, 1, 8, 18, 0, 0, 0, ny), date(2024, 1, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredDate(cal, tt.asOf); !got.Equal(tt.want) {
				t.Errorf("RequiredDate(%v) = %v, want %v", tt.asOf, got, tt.want)
			}
		})
	}
}

func TestIsComplete(t *testing.T) {
	cal := newYorkCalendar(t)
	ny := cal.Location()
	fridayClose := time.Date(2024, 1, 5, 16, 0, 0, 0, ny)
	thursdayClose := time.Date(2024, 1, 4, 16, 0, 0, 0, ny)

	tests := []struct {
		name string
		ts   time.Time
		asOf time.Time
		want bool
	}{
		// the weekend must never look stale when Friday is held
		{"friday data on saturday", fridayClose, time.Date(2024, 1, 6, 9, 0, 0, 0, ny), true},
		{"friday data on sunday night", fridayClose, time.Date(2024, 1, 7, 23, 0, 0, 0, ny), true},
		{"thursday data on saturday", thursdayClose, time.Date(2024, 1, 6, 9, 0, 0, 0, ny), false},
		{"friday data monday morning", fridayClose, time.Date(2024, 1, 8, 10, 0, 0, 0, ny), true},
		{"friday data monday evening", fridayClose, time.Date(2024, 1, 8, 17, 0, 0, 0, ny), false},
		{"thursday data friday midday", thursdayClose, time.Date(2024, 1, 5, 12, 0, 0, 0, ny), true},
		{"thursday data friday after close", thursdayClose, time.Date(2024, 1, 5, 16, 30, 0, 0, ny), true},
		{"wednesday data friday after close", time.Date(2024, 1, 3, 16, 0, 0, 0, ny), time.Date(2024, 1, 5, 16, 30, 0, 0, ny), false},
		// UTC instant on Saturday that is still Friday evening in New York
		{"utc date differs from market date", fridayClose.UTC(), time.Date(2024, 1, 6, 3, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComplete(cal, tt.ts, tt.asOf); got != tt.want {
				t.Errorf("IsComplete(%v, %v) = %v, want %v", tt.ts, tt.asOf, got, tt.want)
			}
		})
	}
}

func TestFirstSession(t *testing.T) {
	cal := newYorkCalendar(t)
	ny := cal.Location()

	// Friday after close: the first session is Monday
	got, ok := firstSession(cal, time.Date(2024, 1, 5, 17, 0, 0, 0, ny), time.Date(2024, 1, 9, 0, 0, 0, 0, ny))
	if !ok || !got.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, ny)) {
		t.Fatalf("firstSession = %v, %v", got, ok)
	}

	if _, ok := firstSession(cal, time.Date(2024, 1, 6, 0, 0, 0, 0, ny), time.Date(2024, 1, 7, 23, 0, 0, 0, ny)); ok {
		t.Fatalf("weekend range reported a session")
	}
}

func TestSeriesCompleteRequiresEverySession(t *testing.T) {
	cal := newYorkCalendar(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	week := dailyBars(t, "ACME", time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC), 5)

	if !seriesComplete(cal, week, start, saturday) {
		t.Fatalf("full week reported incomplete")
	}

	tests := []struct {
		name   string
		points []models.MPricePoint
	}{
		{"edges only", []models.MPricePoint{week[0], week[4]}},
		{"one hole", append(append([]models.MPricePoint{}, week[:2]...), week[3:]...)},
		{"missing first session", week[1:]},
		{"missing last session", week[:4]},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if seriesComplete(cal, tt.points, start, saturday) {
				t.Fatalf("%d points reported complete", len(tt.points))
			}
		})
	}
}

func TestSeriesCompleteIntradayNeedsABarPerSession(t *testing.T) {
	cal := newYorkCalendar(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC) // Mon 09:30 New York
	asOf := time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)  // Wed 13:00, session open

	mon := pricePoint(t, "ACME", "100", time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC), models.SourceProvider, models.Intraday(5))
	tue := pricePoint(t, "ACME", "101", time.Date(2024, 1, 9, 20, 55, 0, 0, time.UTC), models.SourceProvider, models.Intraday(5))

	// Wednesday is still trading, so Monday and Tuesday are all that is owed
	if !seriesComplete(cal, []models.MPricePoint{mon, tue}, start, asOf) {
		t.Fatalf("Monday and Tuesday bars reported incomplete")
	}
	if seriesComplete(cal, []models.MPricePoint{tue}, start, asOf) {
		t.Fatalf("missing Monday reported complete")
	}
}
