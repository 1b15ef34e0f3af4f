package gateway

import (
	"context"
	"errors"
	"sort"
	"time"

	"market-engine/src/config"
	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"
)

// maxLoggedPayload bounds the raw provider payload written to the log.
const maxLoggedPayload = 2048

// -----------------------------------------------------------------------------

// MarketDataGateway serves prices through Tier 1 (cache), Tier 2 (store) and
// finally the rate-limited provider, degrading to stale data when the
// provider cannot be used.
//
// No lock is held across any call; concurrent requests for the same ticker
// may both reach the provider and both write through. Writes are idempotent.
type MarketDataGateway struct {
	Config   *config.Config
	Cache    interfaces.IPriceCache
	Store    interfaces.IPriceStore
	Limiter  interfaces.IRateLimiter
	Provider interfaces.IPriceProvider
	Calendar interfaces.ITradingCalendar
	Logger   *logger.Logger
	now      func() time.Time
}

// -----------------------------------------------------------------------------

func NewMarketDataGateway(
	cfg *config.Config,
	cache interfaces.IPriceCache,
	store interfaces.IPriceStore,
	limiter interfaces.IRateLimiter,
	provider interfaces.IPriceProvider,
	cal interfaces.ITradingCalendar,
	log *logger.Logger,
) *MarketDataGateway {
	return &MarketDataGateway{
		Config:   cfg,
		Cache:    cache,
		Store:    store,
		Limiter:  limiter,
		Provider: provider,
		Calendar: cal,
		Logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the gateway's notion of now.
func (g *MarketDataGateway) WithClock(now func() time.Time) *MarketDataGateway {
	g.now = now
	return g
}

// -----------------------------------------------------------------------------
// Current price
// -----------------------------------------------------------------------------

// GetCurrentPrice returns the freshest acceptable quote for ticker.
func (g *MarketDataGateway) GetCurrentPrice(ctx context.Context, ticker string) (models.MQuote, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return models.MQuote{}, helpers.NewValidation("ticker is empty")
	}
	now := g.now().UTC()

	// Newest value seen on the way down, served if we must degrade.
	var fallback *models.MPricePoint

	// Tier 1
	if p, ok := g.readCache(ctx, ticker, models.IntervalRealTime); ok {
		if IsComplete(g.Calendar, p.Timestamp, now) {
			g.Logger.Debug("%s served from cache", ticker)
			return models.MQuote{MPricePoint: p.WithSource(models.SourceCache)}, nil
		}
		fallback = newer(fallback, p)
	}

	// Tier 2. The newest row may be a bar; its close is the quote as of its
	// timestamp.
	if p, ok := g.readLatest(ctx, ticker); ok {
		p = p.WithInterval(models.IntervalRealTime)
		if g.storedQuoteFresh(p, now) {
			g.promote(ctx, ticker, models.IntervalRealTime, p)
			g.Logger.Debug("%s served from store", ticker)
			return models.MQuote{MPricePoint: p.WithSource(models.SourceStore)}, nil
		}
		fallback = newer(fallback, p)
	}

	// quota
	if err := g.acquire(ctx, ticker); err != nil {
		return g.degradeQuote(ctx, ticker, fallback, err)
	}

	// provider
	p, err := g.Provider.FetchQuote(ctx, ticker)
	if err == nil {
		p, err = g.checkProviderPoint(ticker, models.IntervalRealTime, p)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.MQuote{}, ctxErr
		}
		if errors.Is(err, helpers.ErrNotFound) {
			g.forget(ctx, ticker)
		}
		return g.degradeQuote(ctx, ticker, fallback, err)
	}

	// write-through
	g.writeCache(ctx, ticker, models.IntervalRealTime, p)
	if err := g.Store.Save(ctx, p); err != nil {
		g.Logger.Error("Tier-2 write for %s failed: %v", p, err)
	}

	g.Logger.Debug("%s fetched from %s", ticker, g.Provider.Name())
	return models.MQuote{MPricePoint: p}, nil
}

// -----------------------------------------------------------------------------

// storedQuoteFresh applies the trading-day rule to a Tier-2 row. While the
// market is open the row must also be younger than the real-time TTL;
// Tier-1 entries are bounded by their own TTL instead.
func (g *MarketDataGateway) storedQuoteFresh(p models.MPricePoint, now time.Time) bool {
	if !IsComplete(g.Calendar, p.Timestamp, now) {
		return false
	}
	if g.Calendar.IsOpenOnMinute(now) {
		return now.Sub(p.Timestamp) <= g.Config.TTLFor(models.IntervalRealTime)
	}
	return true
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// GetPriceHistory returns bars in [start, end] ascending. Completeness is
// judged against min(end, now).
func (g *MarketDataGateway) GetPriceHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) (models.MSeries, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return models.MSeries{}, helpers.NewValidation("ticker is empty")
	}
	if interval == models.IntervalRealTime || !interval.Valid() {
		return models.MSeries{}, helpers.NewValidation("unsupported history interval %q", interval)
	}
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return models.MSeries{}, helpers.NewValidation("end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	series := models.MSeries{Ticker: ticker, Interval: interval, Points: []models.MPricePoint{}}

	now := g.now().UTC()
	asOf := end
	if now.Before(asOf) {
		asOf = now
	}
	if _, ok := firstSession(g.Calendar, start, asOf); !ok {
		// no session in range, nothing can exist
		return series, nil
	}

	// Tier 2
	stored := g.readRange(ctx, ticker, start, end, interval)
	if seriesComplete(g.Calendar, stored, start, asOf) {
		series.Points = relabel(stored, models.SourceStore)
		return series, nil
	}

	// quota
	if err := g.acquire(ctx, ticker); err != nil {
		return g.degradeSeries(ctx, series, stored, err)
	}

	// provider
	fetched, err := g.Provider.FetchHistory(ctx, ticker, start, end, interval)
	if err == nil {
		fetched, err = g.checkProviderSeries(ticker, interval, start, end, fetched)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.MSeries{}, ctxErr
		}
		return g.degradeSeries(ctx, series, stored, err)
	}

	if len(fetched) == 0 {
		if len(stored) > 0 {
			series.Points = relabel(stored, models.SourceStore)
			return series, nil
		}
		return models.MSeries{}, helpers.NewUnavailable(ticker, models.ReasonNoData, 0, nil)
	}

	// write-through. Nothing in the engine reads the interval key back;
	// history always goes to Tier 2.
	if err := g.Store.SaveBulk(ctx, fetched); err != nil {
		g.Logger.Error("Tier-2 bulk write of %d %s points for %s failed: %v", len(fetched), interval, ticker, err)
	}
	if last := fetched[len(fetched)-1]; IsComplete(g.Calendar, last.Timestamp, now) {
		g.writeCache(ctx, ticker, interval, last)
	}

	g.Logger.Debug("%s %s history fetched from %s (%d points)", ticker, interval, g.Provider.Name(), len(fetched))
	series.Points = fetched
	return series, nil
}

// -----------------------------------------------------------------------------
// Quota
// -----------------------------------------------------------------------------

// GetRemainingQuota reports both windows for scope; empty scope means the
// configured provider's scope.
func (g *MarketDataGateway) GetRemainingQuota(ctx context.Context, scope string) (models.MQuota, error) {
	if scope == "" {
		scope = g.Provider.Scope()
	}
	return g.Limiter.Remaining(ctx, scope)
}

// -----------------------------------------------------------------------------
// Tier access. Read failures count as misses; write failures are logged.
// -----------------------------------------------------------------------------

func (g *MarketDataGateway) readCache(ctx context.Context, ticker string, interval models.Interval) (models.MPricePoint, bool) {
	p, found, err := g.Cache.Get(ctx, ticker, interval)
	if err != nil {
		g.Logger.Warning("Tier-1 read for %s/%s failed, treating as miss: %v", ticker, interval, err)
		return models.MPricePoint{}, false
	}
	return p, found
}

func (g *MarketDataGateway) readLatest(ctx context.Context, ticker string) (models.MPricePoint, bool) {
	p, found, err := g.Store.Latest(ctx, ticker)
	if err != nil {
		g.Logger.Warning("Tier-2 read for %s failed, treating as miss: %v", ticker, err)
		return models.MPricePoint{}, false
	}
	return p, found
}

func (g *MarketDataGateway) readRange(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) []models.MPricePoint {
	points, err := g.Store.Range(ctx, ticker, start, end)
	if err != nil {
		g.Logger.Warning("Tier-2 range for %s failed, treating as miss: %v", ticker, err)
		return nil
	}
	out := points[:0]
	for _, p := range points {
		if p.Interval == interval {
			out = append(out, p)
		}
	}
	return out
}

func (g *MarketDataGateway) writeCache(ctx context.Context, ticker string, interval models.Interval, p models.MPricePoint) {
	if err := g.Cache.Set(ctx, ticker, interval, p.WithSource(models.SourceCache), g.Config.TTLFor(interval)); err != nil {
		g.Logger.Error("Tier-1 write for %s/%s failed: %v", ticker, interval, err)
	}
}

// promote copies a Tier-2 hit into Tier 1.
func (g *MarketDataGateway) promote(ctx context.Context, ticker string, interval models.Interval, p models.MPricePoint) {
	g.writeCache(ctx, ticker, interval, p)
}

// forget drops the Tier-1 quote of a symbol the provider no longer knows.
func (g *MarketDataGateway) forget(ctx context.Context, ticker string) {
	if err := g.Cache.Invalidate(ctx, ticker, models.IntervalRealTime); err != nil {
		g.Logger.Warning("Tier-1 invalidate for %s failed: %v", ticker, err)
	}
}

// -----------------------------------------------------------------------------
// Rate limit and degradation
// -----------------------------------------------------------------------------

// acquire consumes one provider token. A limiter failure denies the call.
func (g *MarketDataGateway) acquire(ctx context.Context, ticker string) error {
	scope := g.Provider.Scope()

	res, err := g.Limiter.TryAcquire(ctx, scope)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		g.Logger.Error("Rate limiter for scope %s failed, denying: %v", scope, err)
		return helpers.NewUnavailable(ticker, models.ReasonRateLimited, 0, err)
	}
	if !res.Allowed {
		g.Logger.Warning("Scope %s exhausted (minute=%d day=%d), retry after %v",
			scope, res.Quota.MinuteRemaining, res.Quota.DayRemaining, res.RetryAfter)
		return helpers.NewUnavailable(ticker, models.ReasonRateLimited, res.RetryAfter, nil)
	}
	return nil
}

// -----------------------------------------------------------------------------

// degradeQuote turns a failed acquire or provider call into a response.
// Permanent errors and cancellation pass through; transient ones fall back
// to the newest cached value.
func (g *MarketDataGateway) degradeQuote(ctx context.Context, ticker string, fallback *models.MPricePoint, err error) (models.MQuote, error) {
	reason, unavailable := g.classify(ctx, ticker, err)
	if unavailable == nil {
		return models.MQuote{}, err
	}
	if fallback == nil {
		return models.MQuote{}, unavailable
	}

	g.Logger.Warning("Serving stale %s (%s)", fallback, reason)
	return models.MQuote{
		MPricePoint: fallback.WithSource(models.SourceCache),
		Stale:       true,
		Reason:      reason,
	}, nil
}

func (g *MarketDataGateway) degradeSeries(ctx context.Context, series models.MSeries, stored []models.MPricePoint, err error) (models.MSeries, error) {
	reason, unavailable := g.classify(ctx, series.Ticker, err)
	if unavailable == nil {
		return models.MSeries{}, err
	}
	if len(stored) == 0 {
		return models.MSeries{}, unavailable
	}

	g.Logger.Warning("Serving %d stale %s points for %s (%s)", len(stored), series.Interval, series.Ticker, reason)
	series.Points = relabel(stored, models.SourceCache)
	series.Stale = true
	series.Reason = reason
	return series, nil
}

// classify returns the degrade reason and the Unavailable error to raise
// when nothing is cached, or a nil error when err must be returned as is.
func (g *MarketDataGateway) classify(ctx context.Context, ticker string, err error) (models.DegradeReason, *helpers.UnavailableError) {
	if ctx.Err() != nil {
		return "", nil
	}

	var invalid *helpers.InvalidDataError
	if errors.As(err, &invalid) {
		g.Logger.Error("Invalid provider data for %s: %v; payload: %s", ticker, err, truncate(invalid.Payload))
		return "", nil
	}
	if errors.Is(err, helpers.ErrNotFound) {
		g.Logger.Warning("Provider does not know %s: %v", ticker, err)
		return "", nil
	}

	var unavailable *helpers.UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Reason, unavailable
	}

	g.Logger.Error("Provider call for %s failed: %v", ticker, err)
	return models.ReasonProviderError, helpers.NewUnavailable(ticker, models.ReasonProviderError, 0, err)
}

// -----------------------------------------------------------------------------
// Provider result checks
// -----------------------------------------------------------------------------

func (g *MarketDataGateway) checkProviderPoint(ticker string, interval models.Interval, p models.MPricePoint) (models.MPricePoint, error) {
	if p.Ticker != ticker {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, nil, "provider answered for %q", p.Ticker)
	}
	p.Source = models.SourceProvider
	p.Interval = interval
	if err := p.Validate(); err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, nil, "provider point: %v", err)
	}
	return p, nil
}

func (g *MarketDataGateway) checkProviderSeries(ticker string, interval models.Interval, start, end time.Time, points []models.MPricePoint) ([]models.MPricePoint, error) {
	out := make([]models.MPricePoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		if p.Interval != interval {
			return nil, helpers.NewInvalidData(ticker, nil, "provider returned %s bar for %s request", p.Interval, interval)
		}
		checked, err := g.checkProviderPoint(ticker, interval, p)
		if err != nil {
			return nil, err
		}
		out = append(out, checked)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// -----------------------------------------------------------------------------

func newer(cur *models.MPricePoint, p models.MPricePoint) *models.MPricePoint {
	if cur == nil || p.Timestamp.After(cur.Timestamp) {
		return &p
	}
	return cur
}

func relabel(points []models.MPricePoint, source models.Source) []models.MPricePoint {
	out := make([]models.MPricePoint, len(points))
	for i, p := range points {
		out[i] = p.WithSource(source)
	}
	return out
}

func truncate(payload []byte) string {
	if len(payload) > maxLoggedPayload {
		return string(payload[:maxLoggedPayload]) + "...(truncated)"
	}
	return string(payload)
}
