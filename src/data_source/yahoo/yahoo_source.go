package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-engine/src/analysis"
	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"
	"market-engine/src/network"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Bar sizes the chart API serves natively, largest first.
var nativeIntradayMinutes = []int{90, 60, 30, 15, 5, 2, 1}

// YahooFinanceSource fetches quotes and history from the Yahoo chart API.
type YahooFinanceSource struct {
	Config         *models.MConfig
	ProviderConfig models.MProviderConfig
	Network        interfaces.INetworkManager
	Logger         *logger.Logger
	BaseURL        string
	Resampler      *analysis.TimeSeriesResampler
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *YahooFinanceSource {
	base := cfg.Provider.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &YahooFinanceSource{
		Config:         cfg,
		ProviderConfig: cfg.Provider,
		Network:        netMgr,
		Logger:         log,
		BaseURL:        base,
		Resampler:      &analysis.TimeSeriesResampler{},
	}
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return "yahoo"
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Scope() string {
	if s.ProviderConfig.Scope != "" {
		return s.ProviderConfig.Scope
	}
	return s.Name()
}

// -----------------------------------------------------------------------------

// FetchQuote fetches the current regular-market quote.
func (s *YahooFinanceSource) FetchQuote(ctx context.Context, ticker string) (models.MPricePoint, error) {
	params := map[string]string{
		"interval":       "1d",
		"range":          "1d",
		"includePrePost": "false",
	}

	body, err := s.Network.Get(ctx, s.chartURL(ticker), params)
	if err != nil {
		return models.MPricePoint{}, network.Classify(ticker, err)
	}

	return parseQuote(ticker, body)
}

// -----------------------------------------------------------------------------

// FetchHistory fetches bars in [start, end]. Intraday sizes the API does not
// serve are built from the largest native size that divides them.
func (s *YahooFinanceSource) FetchHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) ([]models.MPricePoint, error) {
	granularity, nativeMinutes, err := nativeGranularity(interval)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"interval":       granularity,
		"period1":        strconv.FormatInt(start.Unix(), 10),
		"period2":        strconv.FormatInt(end.Unix()+1, 10),
		"includePrePost": "false",
	}

	body, err := s.Network.Get(ctx, s.chartURL(ticker), params)
	if err != nil {
		return nil, network.Classify(ticker, err)
	}

	nativeInterval := interval
	if nativeMinutes > 0 {
		nativeInterval = models.Intraday(nativeMinutes)
	}
	points, err := parseSeries(ticker, body, nativeInterval)
	if err != nil {
		return nil, err
	}

	points = inRange(points, start, end)

	if want, ok := interval.Minutes(); ok && want != nativeMinutes {
		points, err = s.Resampler.ResampleBars(points, int64(want)*60, interval)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, body, "resample: %v", err)
		}
	}

	if len(points) > 0 {
		s.Logger.Info("Fetched %s: %d %s points [%s -> %s]", ticker, len(points), interval,
			points[0].Timestamp.Format(time.RFC3339), points[len(points)-1].Timestamp.Format(time.RFC3339))
	}
	return points, nil
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) chartURL(ticker string) string {
	return s.BaseURL + url.PathEscape(ticker)
}

// -----------------------------------------------------------------------------

func nativeGranularity(interval models.Interval) (string, int, error) {
	if interval == models.IntervalDaily {
		return "1d", 0, nil
	}
	want, ok := interval.Minutes()
	if !ok {
		return "", 0, helpers.NewValidation("yahoo history does not support interval %q", interval)
	}
	for _, m := range nativeIntradayMinutes {
		if want%m == 0 {
			return fmt.Sprintf("%dm", m), m, nil
		}
	}
	return "", 0, helpers.NewValidation("no native granularity for interval %q", interval)
}

func inRange(points []models.MPricePoint, start, end time.Time) []models.MPricePoint {
	out := points[:0]
	for _, p := range points {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	return out
}
