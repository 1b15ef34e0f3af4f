package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/logger"
	"market-engine/src/models"
)

// -----------------------------------------------------------------------------

type stubStore struct {
	tickers  []string
	cleaned  int
	tickErr  error
	retained int
}

func (s *stubStore) Initialize(context.Context) error                     { return nil }
func (s *stubStore) Save(context.Context, models.MPricePoint) error       { return nil }
func (s *stubStore) SaveBulk(context.Context, []models.MPricePoint) error { return nil }
func (s *stubStore) Latest(context.Context, string) (models.MPricePoint, bool, error) {
	return models.MPricePoint{}, false, nil
}
func (s *stubStore) Range(context.Context, string, time.Time, time.Time) ([]models.MPricePoint, error) {
	return nil, nil
}
func (s *stubStore) Tickers(context.Context) ([]string, error) { return s.tickers, s.tickErr }
func (s *stubStore) CleanupOldData(_ context.Context, days int) (int64, error) {
	s.cleaned++
	s.retained = days
	return 3, nil
}
func (s *stubStore) Close() error { return nil }

// stubGateway answers GetCurrentPrice from a per-ticker table.
type stubGateway struct {
	quotes map[string]models.MQuote
	errs   map[string]error
	calls  []string
}

func (g *stubGateway) GetCurrentPrice(_ context.Context, ticker string) (models.MQuote, error) {
	g.calls = append(g.calls, ticker)
	if err, ok := g.errs[ticker]; ok {
		return models.MQuote{}, err
	}
	return g.quotes[ticker], nil
}

func (g *stubGateway) GetPriceHistory(context.Context, string, time.Time, time.Time, models.Interval) (models.MSeries, error) {
	return models.MSeries{}, nil
}

func (g *stubGateway) GetRemainingQuota(context.Context, string) (models.MQuota, error) {
	return models.MQuota{}, nil
}

func newRefresher(gw *stubGateway, store *stubStore, tickers ...string) *Refresher {
	cfg := &models.MConfig{
		Refresh: models.MRefreshConfig{Enabled: true, Cron: "0 */15 * * * *", CleanupCron: "0 30 3 * * *", Tickers: tickers},
		Storage: models.MStorageConfig{RetentionDays: 30},
	}
	return NewRefresher(context.Background(), cfg, gw, store, logger.NewDiscardLogger("Refresher"))
}

// -----------------------------------------------------------------------------

func TestRunNowRefreshesUnionOfTickers(t *testing.T) {
	gw := &stubGateway{
		quotes: map[string]models.MQuote{"MSFT": {Stale: true, Reason: models.ReasonProviderError}},
		errs:   map[string]error{"ZZZZ": helpers.NewNotFound("ZZZZ", nil)},
	}
	store := &stubStore{tickers: []string{"MSFT", "AAPL", "ZZZZ"}}
	r := newRefresher(gw, store, " aapl", "GOOG")

	report, err := r.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	want := []string{"AAPL", "GOOG", "MSFT", "ZZZZ"}
	if len(gw.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", gw.calls, want)
	}
	for i := range want {
		if gw.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", gw.calls, want)
		}
	}
	if report.Refreshed != 2 || report.Stale != 1 || report.Failed != 1 || report.Stopped {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunNowStopsWhenRateLimited(t *testing.T) {
	gw := &stubGateway{
		errs: map[string]error{"B": helpers.NewUnavailable("B", models.ReasonRateLimited, time.Minute, nil)},
	}
	r := newRefresher(gw, &stubStore{}, "A", "B", "C", "D")

	report, err := r.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !report.Stopped || report.Refreshed != 1 || report.Skipped != 3 {
		t.Fatalf("report = %+v", report)
	}
	if len(gw.calls) != 2 {
		t.Fatalf("calls = %v, want A and B only", gw.calls)
	}
}

func TestRunNowStopsOnStaleRateLimitedQuote(t *testing.T) {
	gw := &stubGateway{
		quotes: map[string]models.MQuote{"A": {Stale: true, Reason: models.ReasonRateLimited}},
	}
	r := newRefresher(gw, &stubStore{}, "A", "B", "C")

	report, err := r.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !report.Stopped || report.Stale != 1 || report.Skipped != 2 || len(gw.calls) != 1 {
		t.Fatalf("report = %+v calls = %v", report, gw.calls)
	}
}

func TestRunNowHonorsCancellation(t *testing.T) {
	gw := &stubGateway{}
	r := newRefresher(gw, &stubStore{}, "A", "B")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.RunNow(ctx)
	if !errors.Is(err, context.Canceled) || report.Skipped != 2 || len(gw.calls) != 0 {
		t.Fatalf("report = %+v err = %v", report, err)
	}
}

func TestRunNowRejectsOverlap(t *testing.T) {
	r := newRefresher(&stubGateway{}, &stubStore{}, "A")
	r.running.Lock()
	defer r.running.Unlock()

	if _, err := r.RunNow(context.Background()); err == nil {
		t.Fatalf("expected overlapping run to be rejected")
	}
}

func TestRunNowPropagatesStoreError(t *testing.T) {
	r := newRefresher(&stubGateway{}, &stubStore{tickErr: errors.New("db down")}, "A")
	if _, err := r.RunNow(context.Background()); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestRegisterAllAndCleanup(t *testing.T) {
	store := &stubStore{}
	r := newRefresher(&stubGateway{}, store)
	if err := r.RegisterAll(); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if n := len(r.Cron.Entries()); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}

	r.cleanupTask()
	if store.cleaned != 1 || store.retained != 30 {
		t.Fatalf("cleanup calls=%d days=%d", store.cleaned, store.retained)
	}

	bad := newRefresher(&stubGateway{}, store)
	bad.Config.Cron = "not a cron"
	if err := bad.RegisterAll(); err == nil {
		t.Fatalf("expected invalid cron spec to fail")
	}
}
