package alphavantage

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/models"
	"market-engine/src/utils"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Alpha Vantage answers most failures with HTTP 200 and one of these keys.
type envelope struct {
	ErrorMessage null.String `json:"Error Message"`
	Note         null.String `json:"Note"`
	Information  null.String `json:"Information"`
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol           null.String `json:"01. symbol"`
		Open             null.String `json:"02. open"`
		High             null.String `json:"03. high"`
		Low              null.String `json:"04. low"`
		Price            null.String `json:"05. price"`
		Volume           null.String `json:"06. volume"`
		LatestTradingDay null.String `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

type seriesBar struct {
	Open   null.String `json:"1. open"`
	High   null.String `json:"2. high"`
	Low    null.String `json:"3. low"`
	Close  null.String `json:"4. close"`
	Volume null.String `json:"5. volume"`
}

type seriesMeta struct {
	Symbol   null.String `json:"2. Symbol"`
	TimeZone null.String `json:"5. Time Zone"`
	// intraday payloads put the zone one field later
	IntradayTimeZone null.String `json:"6. Time Zone"`
}

// -----------------------------------------------------------------------------

// checkEnvelope maps in-band errors. Alpha Vantage reports an unknown symbol
// as "Error Message" and quota exhaustion as "Note" or "Information".
func checkEnvelope(ticker string, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return helpers.NewInvalidData(ticker, data, "json unmarshal failed: %v", err)
	}
	if env.ErrorMessage.Valid && env.ErrorMessage.String != "" {
		return helpers.NewNotFound(ticker, &helpers.MarketDataError{Message: env.ErrorMessage.String})
	}
	for _, msg := range []null.String{env.Note, env.Information} {
		if !msg.Valid || msg.String == "" {
			continue
		}
		lower := strings.ToLower(msg.String)
		reason := models.ReasonProviderError
		if strings.Contains(lower, "call frequency") || strings.Contains(lower, "rate limit") ||
			strings.Contains(lower, "requests per day") {
			reason = models.ReasonRateLimited
		}
		return helpers.NewUnavailable(ticker, reason, 0, &helpers.MarketDataError{Message: msg.String})
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) parseQuote(ticker string, data []byte) (models.MPricePoint, error) {
	if err := checkEnvelope(ticker, data); err != nil {
		return models.MPricePoint{}, err
	}

	var resp globalQuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "json unmarshal failed: %v", err)
	}
	q := resp.GlobalQuote
	if !q.Symbol.Valid && !q.Price.Valid {
		// An empty "Global Quote" object is how unknown symbols come back.
		return models.MPricePoint{}, helpers.NewNotFound(ticker, nil)
	}

	price, err := requireDecimal(q.Price, "05. price")
	if err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "%v", err)
	}
	if !q.LatestTradingDay.Valid || q.LatestTradingDay.String == "" {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "missing 07. latest trading day")
	}
	day, err := time.ParseInLocation("2006-01-02", q.LatestTradingDay.String, s.Location)
	if err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "bad latest trading day %q", q.LatestTradingDay.String)
	}
	ts := utils.AtClock(day, s.Close, s.Location)
	if now := s.now(); ts.After(now) {
		ts = now
	}

	var ohlcv *models.MOHLCV
	if q.Open.Valid && q.High.Valid && q.Low.Valid && q.Volume.Valid {
		bar, err := toOHLCV(seriesBar{Open: q.Open, High: q.High, Low: q.Low, Close: q.Price, Volume: q.Volume})
		if err != nil {
			return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "%v", err)
		}
		ohlcv = &bar
	}

	p, err := models.NewPricePoint(ticker,
		models.MPrice{Amount: price, Currency: s.ProviderConfig.Currency},
		ts, models.SourceProvider, models.IntervalRealTime, ohlcv)
	if err != nil {
		return models.MPricePoint{}, helpers.NewInvalidData(ticker, data, "%v", err)
	}
	return p, nil
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) parseSeries(ticker string, data []byte, interval models.Interval) ([]models.MPricePoint, error) {
	if err := checkEnvelope(ticker, data); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, helpers.NewInvalidData(ticker, data, "json unmarshal failed: %v", err)
	}

	var meta seriesMeta
	if m, ok := raw["Meta Data"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bad meta data: %v", err)
		}
	}
	loc := s.Location
	for _, tz := range []null.String{meta.IntradayTimeZone, meta.TimeZone} {
		if tz.Valid && tz.String != "" {
			if l, err := time.LoadLocation(tz.String); err == nil {
				loc = l
			}
			break
		}
	}

	var seriesKey string
	for k := range raw {
		if strings.HasPrefix(k, "Time Series") {
			seriesKey = k
			break
		}
	}
	if seriesKey == "" {
		return nil, helpers.NewInvalidData(ticker, data, "no time series in response")
	}

	var series map[string]seriesBar
	if err := json.Unmarshal(raw[seriesKey], &series); err != nil {
		return nil, helpers.NewInvalidData(ticker, data, "bad time series: %v", err)
	}

	points := make([]models.MPricePoint, 0, len(series))
	for stamp, b := range series {
		ts, err := s.parseStamp(stamp, loc, interval)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bad timestamp %q", stamp)
		}
		ohlcv, err := toOHLCV(b)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bar %s: %v", stamp, err)
		}
		p, err := models.NewPricePoint(ticker,
			models.MPrice{Amount: ohlcv.Close, Currency: s.ProviderConfig.Currency},
			ts, models.SourceProvider, interval, &ohlcv)
		if err != nil {
			return nil, helpers.NewInvalidData(ticker, data, "bar %s: %v", stamp, err)
		}
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func (s *AlphaVantageSource) parseStamp(stamp string, loc *time.Location, interval models.Interval) (time.Time, error) {
	if interval == models.IntervalDaily {
		day, err := time.ParseInLocation("2006-01-02", stamp, loc)
		if err != nil {
			return time.Time{}, err
		}
		return utils.AtClock(day, s.Close, loc), nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", stamp, loc)
}

// -----------------------------------------------------------------------------

func requireDecimal(v null.String, field string) (decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return decimal.Decimal{}, &helpers.MarketDataError{Message: "missing " + field}
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.Decimal{}, &helpers.MarketDataError{Message: "bad " + field + " " + strconv.Quote(v.String)}
	}
	return d, nil
}

func toOHLCV(b seriesBar) (models.MOHLCV, error) {
	var out models.MOHLCV
	var err error
	if out.Open, err = requireDecimal(b.Open, "open"); err != nil {
		return out, err
	}
	if out.High, err = requireDecimal(b.High, "high"); err != nil {
		return out, err
	}
	if out.Low, err = requireDecimal(b.Low, "low"); err != nil {
		return out, err
	}
	if out.Close, err = requireDecimal(b.Close, "close"); err != nil {
		return out, err
	}
	if !b.Volume.Valid || b.Volume.String == "" {
		return out, &helpers.MarketDataError{Message: "missing volume"}
	}
	if out.Volume, err = strconv.ParseInt(b.Volume.String, 10, 64); err != nil {
		return out, &helpers.MarketDataError{Message: "bad volume " + strconv.Quote(b.Volume.String)}
	}
	return out, out.Validate()
}
