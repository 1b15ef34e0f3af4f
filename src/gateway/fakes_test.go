package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"market-engine/src/config"
	"market-engine/src/logger"
	"market-engine/src/models"
	"market-engine/src/utils"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// In-memory tiers
// -----------------------------------------------------------------------------

type cacheKey struct {
	ticker   string
	interval models.Interval
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[cacheKey]models.MPricePoint
	ttls    map[cacheKey]time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[cacheKey]models.MPricePoint{}, ttls: map[cacheKey]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, ticker string, interval models.Interval) (models.MPricePoint, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return models.MPricePoint{}, false, c.getErr
	}
	p, ok := c.entries[cacheKey{ticker, interval}]
	return p, ok, nil
}

func (c *fakeCache) Set(_ context.Context, ticker string, interval models.Interval, p models.MPricePoint, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{ticker, interval}] = p
	c.ttls[cacheKey{ticker, interval}] = ttl
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, ticker string, interval models.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{ticker, interval})
	return nil
}

type storeKey struct {
	ticker   string
	ts       int64
	interval models.Interval
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[storeKey]models.MPricePoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[storeKey]models.MPricePoint{}}
}

func (s *fakeStore) Initialize(context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) Save(ctx context.Context, p models.MPricePoint) error {
	return s.SaveBulk(ctx, []models.MPricePoint{p})
}

func (s *fakeStore) SaveBulk(_ context.Context, points []models.MPricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.rows[storeKey{p.Ticker, p.Timestamp.Unix(), p.Interval}] = p
	}
	return nil
}

func (s *fakeStore) sorted(ticker string) []models.MPricePoint {
	var out []models.MPricePoint
	for _, p := range s.rows {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *fakeStore) Latest(_ context.Context, ticker string) (models.MPricePoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sorted(ticker)
	if len(rows) == 0 {
		return models.MPricePoint{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (s *fakeStore) Range(_ context.Context, ticker string, start, end time.Time) ([]models.MPricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MPricePoint
	for _, p := range s.sorted(ticker) {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Tickers(context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) CleanupOldData(context.Context, int) (int64, error) { return 0, nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// -----------------------------------------------------------------------------
// Limiter and provider
// -----------------------------------------------------------------------------

type fakeLimiter struct {
	mu         sync.Mutex
	remaining  int64
	retryAfter time.Duration
	err        error
	calls      int
}

func (l *fakeLimiter) TryAcquire(context.Context, string) (models.MAcquireResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return models.MAcquireResult{}, l.err
	}
	if l.remaining <= 0 {
		return models.MAcquireResult{Allowed: false, RetryAfter: l.retryAfter}, nil
	}
	l.remaining--
	return models.MAcquireResult{Allowed: true, Quota: models.MQuota{MinuteRemaining: l.remaining}}, nil
}

func (l *fakeLimiter) Remaining(_ context.Context, scope string) (models.MQuota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.MQuota{Scope: scope, MinuteRemaining: l.remaining, DayRemaining: l.remaining}, nil
}

func (l *fakeLimiter) WaitTime(context.Context, string) (time.Duration, error) {
	return l.retryAfter, nil
}

type fakeProvider struct {
	mu           sync.Mutex
	quote        models.MPricePoint
	quoteErr     error
	history      []models.MPricePoint
	historyErr   error
	quoteCalls   int
	historyCalls int
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Scope() string { return "fake-key" }

func (p *fakeProvider) FetchQuote(ctx context.Context, ticker string) (models.MPricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quoteCalls++
	if p.quoteErr != nil {
		return models.MPricePoint{}, p.quoteErr
	}
	if err := ctx.Err(); err != nil {
		return models.MPricePoint{}, err
	}
	return p.quote, nil
}

func (p *fakeProvider) FetchHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) ([]models.MPricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historyCalls++
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	return p.history, nil
}

// -----------------------------------------------------------------------------
// Fixture
// -----------------------------------------------------------------------------

type fixture struct {
	gw       *MarketDataGateway
	cache    *fakeCache
	store    *fakeStore
	limiter  *fakeLimiter
	provider *fakeProvider
	cal      *utils.TradingCalendar
	now      time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cfg := &config.Config{MConfig: &models.MConfig{
		Cache: models.MCacheConfig{RealTimeTTLSeconds: 900, DailyTTLSeconds: 43200, IntradayTTLSeconds: 300},
	}}
	f := &fixture{
		cache:    newFakeCache(),
		store:    newFakeStore(),
		limiter:  &fakeLimiter{remaining: 5},
		provider: &fakeProvider{},
		cal:      utils.NewWeekendCalendar(loc, 9*time.Hour+30*time.Minute, 16*time.Hour),
		now:      now,
	}
	f.gw = NewMarketDataGateway(cfg, f.cache, f.store, f.limiter, f.provider, f.cal,
		logger.NewDiscardLogger("Gateway")).WithClock(func() time.Time { return f.now })
	return f
}

func pricePoint(t *testing.T, ticker, price string, ts time.Time, source models.Source, interval models.Interval) models.MPricePoint {
	t.Helper()
	p, err := models.NewPricePoint(ticker, models.MPrice{Amount: decimal.RequireFromString(price), Currency: "USD"},
		ts, source, interval, nil)
	if err != nil {
		t.Fatalf("NewPricePoint: %v", err)
	}
	return p
}

var errBoom = errors.New("boom")
