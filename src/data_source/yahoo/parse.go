package yahoo

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/models"

	"github.com/shopspring/decimal"
)

// YahooChartResponse is the subset of the chart payload we read. Numbers are
// kept as json.Number so prices become decimals without a float round trip;
// pointers distinguish null from zero.
type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string       `json:"currency"`
				Symbol               string       `json:"symbol"`
				ExchangeTimezoneName string       `json:"exchangeTimezoneName"`
				RegularMarketTime    *int64       `json:"regularMarketTime"`
				RegularMarketPrice   *json.Number `json:"regularMarketPrice"`
				DataGranularity      string       `json:"dataGranularity"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*json.Number `json:"high"`
					Low    []*json.Number `json:"low"`
					Open   []*json.Number `json:"open"`
					Close  []*json.Number `json:"close"`
					Volume []*json.Number `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type bar struct {
	ts    int64
	ohlcv models.MOHLCV
}

// -----------------------------------------------------------------------------

func decodeChart(ticker string, data []byte) (*YahooChartResponse, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, helpers.NewInvalidData(ticker, data, "json unmarshal failed: %v", err)
	}

	if e := resp.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, helpers.NewNotFound(ticker, nil)
		}
		return nil, helpers.NewUnavailable(ticker, models.ReasonProviderError, 0,
			&helpers.MarketDataError{Message: "yahoo api error: " + e.Code + " - " + e.Description})
	}

	if len(resp.Chart.Result) == 0 {
		return nil, helpers.NewInvalidData(ticker, data, "no result in response")
	}
	return &resp, nil
}

// -----------------------------------------------------------------------------

// parseQuote turns a range=1d chart payload into a real-time point.
func parseQuote(ticker string, data []byte) (models.MPricePoint, error) {
	resp, err := decodeChart(ticker, data)
	if err != nil {
		return models.MPricePoint{}, err
	}
	result := resp.Chart.Result[0]
	meta := result.Meta

	if meta.RegularMarketPrice == nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "missing regularMarketPrice")
	}
	price, err := decimal.NewFromString(meta.RegularMarketPrice.String())
	if err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "bad regularMarketPrice %q", meta.RegularMarketPrice.String())
	}
	if meta.RegularMarketTime == nil || *meta.RegularMarketTime <= 0 {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "missing regularMarketTime")
	}
	if meta.Currency == "" {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "missing currency")
	}

	bars, err := parseBars(ticker, data, resp)
	if err != nil {
		return models.MPricePoint{}, err
	}

	var ohlcv *models.MOHLCV
	if len(bars) > 0 {
		last := bars[len(bars)-1].ohlcv
		ohlcv = &last
	}

	p, err := models.NewPricePoint(ticker,
		models.MPrice{Amount: price, Currency: meta.Currency},
		time.Unix(*meta.RegularMarketTime, 0),
		models.SourceProvider,
		models.IntervalRealTime,
		ohlcv,
	)
	if err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "%v", err)
	}
	return p, nil
}

// -----------------------------------------------------------------------------

// parseSeries turns a chart payload into ascending bars labeled interval.
func parseSeries(ticker string, data []byte, interval models.Interval) ([]models.MPricePoint, error) {
	resp, err := decodeChart(ticker, data)
	if err != nil {
		return nil, err
	}
	currency := resp.Chart.Result[0].Meta.Currency
	if currency == "" {
		return nil, helpers.NewInvalidData(ticker, data, "missing currency")
	}

	bars, err := parseBars(ticker, data, resp)
	if err != nil {
		return nil, err
	}

	points := make([]models.MPricePoint, 0, len(bars))
	for _, b := range bars {
		ohlcv := b.ohlcv
		p, err := models.NewPricePoint(ticker,
			models.MPrice{Amount: b.ohlcv.Close, Currency: currency},
			time.Unix(b.ts, 0),
			models.SourceProvider,
			interval,
			&ohlcv,
		)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bar at %d: %v", b.ts, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// -----------------------------------------------------------------------------

// parseBars validates array alignment and returns complete bars, sorted.
// Rows where every field is null are sessions without trades and are skipped;
// a partially null row is inconsistent data.
func parseBars(ticker string, data []byte, resp *YahooChartResponse) ([]bar, error) {
	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, helpers.NewInvalidData(ticker, data, "no quote data in response")
	}
	quote := result.Indicators.Quote[0]

	n := len(result.Timestamp)
	if len(quote.Close) != n || len(quote.Open) != n || len(quote.High) != n ||
		len(quote.Low) != n || len(quote.Volume) != n {
		return nil, helpers.NewInvalidData(ticker, data, "data alignment error: mismatched array lengths")
	}

	var bars []bar
	for i := 0; i < n; i++ {
		fields := []*json.Number{quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i], quote.Volume[i]}
		nulls := 0
		for _, f := range fields {
			if f == nil {
				nulls++
			}
		}
		if nulls == len(fields) {
			continue
		}
		if nulls > 0 {
			return nil, helpers.NewInvalidData(ticker, data, "partial OHLCV at index %d", i)
		}

		var vals [4]decimal.Decimal
		for j := 0; j < 4; j++ {
			d, err := decimal.NewFromString(fields[j].String())
			if err != nil {
				return nil, helpers.NewInvalidData(ticker, data, "bad number %q at index %d", fields[j].String(), i)
			}
			vals[j] = d
		}
		volume, err := parseVolume(*quote.Volume[i])
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bad volume at index %d: %v", i, err)
		}

		bars = append(bars, bar{
			ts: result.Timestamp[i],
			ohlcv: models.MOHLCV{
				Open:   vals[0],
				High:   vals[1],
				Low:    vals[2],
				Close:  vals[3],
				Volume: volume,
			},
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].ts < bars[j].ts
	})
	return bars, nil
}

func parseVolume(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, &helpers.MarketDataError{Message: "fractional volume " + n.String()}
	}
	return d.IntPart(), nil
}
