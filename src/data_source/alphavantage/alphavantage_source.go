package alphavantage

import (
	"context"
	"fmt"
	"time"

	"market-engine/src/analysis"
	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"
	"market-engine/src/network"
	"market-engine/src/utils"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// Intraday bar sizes served natively, largest first.
var nativeIntradayMinutes = []int{60, 30, 15, 5, 1}

// compactLimit is how far back outputsize=compact reaches for daily bars
// (100 sessions, with calendar slack).
const compactLimit = 140 * 24 * time.Hour

// AlphaVantageSource is a keyed provider with a hard per-minute and per-day
// request quota, which is what the rate limiter scope accounts for.
type AlphaVantageSource struct {
	Config         *models.MConfig
	ProviderConfig models.MProviderConfig
	Network        interfaces.INetworkManager
	Logger         *logger.Logger
	BaseURL        string
	Location       *time.Location
	Close          time.Duration
	Resampler      *analysis.TimeSeriesResampler
	now            func() time.Time
}

// -----------------------------------------------------------------------------

func NewAlphaVantageSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *AlphaVantageSource {
	base := cfg.Provider.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil || cfg.Calendar.Timezone == "" {
		loc, _ = time.LoadLocation(utils.DefaultMarketTimezone)
	}
	closeAt, err := utils.ParseClock(cfg.Calendar.MarketClose)
	if err != nil {
		closeAt, _ = utils.ParseClock(utils.DefaultMarketClose)
	}
	return &AlphaVantageSource{
		Config:         cfg,
		ProviderConfig: cfg.Provider,
		Network:        netMgr,
		Logger:         log,
		BaseURL:        base,
		Location:       loc,
		Close:          closeAt,
		Resampler:      &analysis.TimeSeriesResampler{},
		now:            time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) Name() string {
	return "alphavantage"
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) Scope() string {
	if s.ProviderConfig.Scope != "" {
		return s.ProviderConfig.Scope
	}
	return s.Name()
}

// -----------------------------------------------------------------------------

// FetchQuote calls GLOBAL_QUOTE. The payload only carries the trading date, so
// the point is stamped at that session's close, or now if the session is live.
func (s *AlphaVantageSource) FetchQuote(ctx context.Context, ticker string) (models.MPricePoint, error) {
	body, err := s.Network.Get(ctx, s.BaseURL, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   ticker,
		"apikey":   s.ProviderConfig.APIKey,
	})
	if err != nil {
		return models.MPricePoint{}, network.Classify(ticker, err)
	}
	return s.parseQuote(ticker, body)
}

// -----------------------------------------------------------------------------

// FetchHistory calls TIME_SERIES_DAILY or TIME_SERIES_INTRADAY.
func (s *AlphaVantageSource) FetchHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) ([]models.MPricePoint, error) {
	params := map[string]string{
		"symbol": ticker,
		"apikey": s.ProviderConfig.APIKey,
	}

	nativeInterval := interval
	nativeMinutes := 0
	switch {
	case interval == models.IntervalDaily:
		params["function"] = "TIME_SERIES_DAILY"
		params["outputsize"] = "compact"
		if s.now().Sub(start) > compactLimit {
			params["outputsize"] = "full"
		}
	case interval.IsIntraday():
		want, _ := interval.Minutes()
		for _, m := range nativeIntradayMinutes {
			if want%m == 0 {
				nativeMinutes = m
				break
			}
		}
		if nativeMinutes == 0 {
			return nil, helpers.NewValidation("no native granularity for interval %q", interval)
		}
		params["function"] = "TIME_SERIES_INTRADAY"
		params["interval"] = fmt.Sprintf("%dmin", nativeMinutes)
		params["outputsize"] = "full"
		nativeInterval = models.Intraday(nativeMinutes)
	default:
		return nil, helpers.NewValidation("alphavantage history does not support interval %q", interval)
	}

	body, err := s.Network.Get(ctx, s.BaseURL, params)
	if err != nil {
		return nil, network.Classify(ticker, err)
	}

	points, err := s.parseSeries(ticker, body, nativeInterval)
	if err != nil {
		return nil, err
	}

	filtered := points[:0]
	for _, p := range points {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			filtered = append(filtered, p)
		}
	}
	points = filtered

	if want, ok := interval.Minutes(); ok && want != nativeMinutes {
		points, err = s.Resampler.ResampleBars(points, int64(want)*60, interval)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, body, "resample: %v", err)
		}
	}

	s.Logger.Info("Fetched %s: %d %s points", ticker, len(points), interval)
	return points, nil
}
