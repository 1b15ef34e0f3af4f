package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/logger"
	"market-engine/src/models"
	"market-engine/src/network"
)

const globalQuote = `{"Global Quote":{"01. symbol":"ACME","02. open":"148.50","03. high":"151.25","04. low":"148.00",
"05. price":"150.00","06. volume":"1234567","07. latest trading day":"2024-01-05","08. previous close":"147.00"}}`

const dailySeries = `{"Meta Data":{"1. Information":"Daily Prices","2. Symbol":"ACME","3. Last Refreshed":"2024-01-05",
"4. Output Size":"Compact","5. Time Zone":"US/Eastern"},
"Time Series (Daily)":{
"2024-01-05":{"1. open":"103.0","2. high":"104.0","3. low":"102.0","4. close":"103.5","5. volume":"4000"},
"2024-01-03":{"1. open":"101.0","2. high":"102.5","3. low":"100.5","4. close":"102.0","5. volume":"2000"},
"2024-01-04":{"1. open":"102.0","2. high":"103.0","3. low":"101.0","4. close":"102.5","5. volume":"3000"}}}`

func newTestSource(t *testing.T, now time.Time, handler http.HandlerFunc) *AlphaVantageSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &models.MConfig{
		Network:  models.MNetworkConfig{RequestTimeout: 5},
		Provider: models.MProviderConfig{Name: "alphavantage", APIKey: "demo", BaseURL: srv.URL + "/query", Currency: "USD"},
	}
	nm := network.NewAsyncNetworkManager(cfg, logger.NewDiscardLogger("NetworkManager"))
	src := NewAlphaVantageSource(cfg, nm, logger.NewDiscardLogger("AlphaVantageSource"))
	src.now = func() time.Time { return now }
	return src
}

func serve(payload string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}
}

func TestFetchQuoteStampsSessionClose(t *testing.T) {
	var function, apikey string
	now := time.Date(2024, 1, 6, 15, 0, 0, 0, time.UTC)
	src := newTestSource(t, now, func(w http.ResponseWriter, r *http.Request) {
		function = r.URL.Query().Get("function")
		apikey = r.URL.Query().Get("apikey")
		w.Write([]byte(globalQuote))
	})

	p, err := src.FetchQuote(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if function != "GLOBAL_QUOTE" || apikey != "demo" {
		t.Fatalf("function=%s apikey=%s", function, apikey)
	}
	// 16:00 New York on 2024-01-05
	if want := time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC); !p.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", p.Timestamp, want)
	}
	if p.Price.Amount.String() != "150" || p.Price.Currency != "USD" || p.Interval != models.IntervalRealTime {
		t.Fatalf("point = %s", p)
	}
	if p.OHLCV == nil || p.OHLCV.Volume != 1234567 {
		t.Fatalf("ohlcv = %+v", p.OHLCV)
	}
}

func TestFetchQuoteDuringSessionUsesNow(t *testing.T) {
	now := time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC)
	src := newTestSource(t, now, serve(globalQuote))

	p, err := src.FetchQuote(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if !p.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", p.Timestamp, now)
	}
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
		reason  models.DegradeReason
	}{
		{"unknown symbol", `{"Error Message":"Invalid API call. Please retry or visit the documentation."}`, helpers.ErrNotFound, ""},
		{"empty quote", `{"Global Quote":{}}`, helpers.ErrNotFound, ""},
		{"call frequency", `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, helpers.ErrUnavailable, models.ReasonRateLimited},
		{"daily quota", `{"Information":"You have reached the 25 requests per day limit."}`, helpers.ErrUnavailable, models.ReasonRateLimited},
		{"other information", `{"Information":"This is a premium endpoint."}`, helpers.ErrUnavailable, models.ReasonProviderError},
		{"garbage", `not json`, helpers.ErrInvalidData, ""},
		{"bad price", `{"Global Quote":{"01. symbol":"ACME","05. price":"abc","07. latest trading day":"2024-01-05"}}`, helpers.ErrInvalidData, ""},
		{"missing day", `{"Global Quote":{"01. symbol":"ACME","05. price":"10.00"}}`, helpers.ErrInvalidData, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), serve(tt.payload))

			_, err := src.FetchQuote(context.Background(), "ACME")
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
			var unavailable *helpers.UnavailableError
			if tt.reason != "" && (!errors.As(err, &unavailable) || unavailable.Reason != tt.reason) {
				t.Fatalf("err = %v, want reason %s", err, tt.reason)
			}
		})
	}
}

func TestFetchHistoryDaily(t *testing.T) {
	var outputsize string
	now := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	src := newTestSource(t, now, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("function") != "TIME_SERIES_DAILY" {
			t.Errorf("function = %s", r.URL.Query().Get("function"))
		}
		outputsize = r.URL.Query().Get("outputsize")
		w.Write([]byte(dailySeries))
	})

	start := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	points, err := src.FetchHistory(context.Background(), "ACME", start, now, models.IntervalDaily)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if outputsize != "compact" {
		t.Fatalf("outputsize = %s, want compact", outputsize)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if want := time.Date(2024, 1, 4, 21, 0, 0, 0, time.UTC); !points[0].Timestamp.Equal(want) {
		t.Fatalf("first timestamp = %v, want %v", points[0].Timestamp, want)
	}
	if points[1].Price.Amount.String() != "103.5" {
		t.Fatalf("last point = %s", points[1])
	}
}

func TestFetchHistoryRequestsFullOutputForOldRanges(t *testing.T) {
	var outputsize string
	now := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	src := newTestSource(t, now, func(w http.ResponseWriter, r *http.Request) {
		outputsize = r.URL.Query().Get("outputsize")
		w.Write([]byte(dailySeries))
	})

	if _, err := src.FetchHistory(context.Background(), "ACME", now.AddDate(-1, 0, 0), now, models.IntervalDaily); err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if outputsize != "full" {
		t.Fatalf("outputsize = %s, want full", outputsize)
	}
}

func TestFetchHistoryIntradayResamples(t *testing.T) {
	payload := `{"Meta Data":{"1. Information":"Intraday","2. Symbol":"ACME","4. Interval":"5min","6. Time Zone":"US/Eastern"},
"Time Series (5min)":{
"2024-01-05 09:30:00":{"1. open":"10","2. high":"11","3. low":"9.5","4. close":"11","5. volume":"100"},
"2024-01-05 09:35:00":{"1. open":"11","2. high":"13","3. low":"10.5","4. close":"12","5. volume":"200"},
"2024-01-05 09:40:00":{"1. open":"12","2. high":"12.5","3. low":"11","4. close":"12.25","5. volume":"300"}}}`
	now := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	src := newTestSource(t, now, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "5min" {
			t.Errorf("interval = %s", r.URL.Query().Get("interval"))
		}
		w.Write([]byte(payload))
	})

	points, err := src.FetchHistory(context.Background(), "ACME",
		time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC), now, models.Intraday(10))
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].OHLCV.Volume != 300 || points[0].Interval != models.Intraday(10) {
		t.Fatalf("first bar = %s %+v", points[0], points[0].OHLCV)
	}
}

func TestFetchHistoryRejectsRealtime(t *testing.T) {
	src := newTestSource(t, time.Now(), serve(dailySeries))
	_, err := src.FetchHistory(context.Background(), "ACME", time.Now().Add(-time.Hour), time.Now(), models.IntervalRealTime)
	var verr *helpers.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
