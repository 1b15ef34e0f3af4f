package models

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Source tells which tier produced a price point.
type Source string

const (
	SourceProvider Source = "provider"
	SourceCache    Source = "cache"
	SourceStore    Source = "store"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceProvider, SourceCache, SourceStore:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// Interval is the sampling granularity of a price point: "realtime", "daily"
// or "intraday-N" where N is the bar size in minutes.
type Interval string

const (
	IntervalRealTime Interval = "realtime"
	IntervalDaily    Interval = "daily"

	intradayPrefix = "intraday-"
)

// Intraday returns the intraday interval for bars of the given minutes.
func Intraday(minutes int) Interval {
	return Interval(fmt.Sprintf("%s%d", intradayPrefix, minutes))
}

// ParseInterval validates a textual interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !iv.Valid() {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// Valid reports whether the interval is well formed.
func (iv Interval) Valid() bool {
	switch iv {
	case IntervalRealTime, IntervalDaily:
		return true
	}
	_, ok := iv.Minutes()
	return ok
}

// Minutes returns N for an "intraday-N" interval.
func (iv Interval) Minutes() (int, bool) {
	s := string(iv)
	if !strings.HasPrefix(s, intradayPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, intradayPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsIntraday reports whether the interval is an intraday bar size.
func (iv Interval) IsIntraday() bool {
	_, ok := iv.Minutes()
	return ok
}

// -----------------------------------------------------------------------------

// MPrice is a decimal amount in a currency.
type MPrice struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (p MPrice) String() string {
	return p.Amount.String() + " " + p.Currency
}

// MOHLCV is optional bar detail attached to a price point.
type MOHLCV struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Validate checks low <= open,close <= high and non-negative volume.
func (o MOHLCV) Validate() error {
	if !o.Low.IsPositive() {
		return fmt.Errorf("low must be positive, got %s", o.Low)
	}
	if o.Low.GreaterThan(o.High) {
		return fmt.Errorf("low %s above high %s", o.Low, o.High)
	}
	for name, v := range map[string]decimal.Decimal{"open": o.Open, "close": o.Close} {
		if v.LessThan(o.Low) || v.GreaterThan(o.High) {
			return fmt.Errorf("%s %s outside [%s, %s]", name, v, o.Low, o.High)
		}
	}
	if o.Volume < 0 {
		return fmt.Errorf("negative volume %d", o.Volume)
	}
	return nil
}

// -----------------------------------------------------------------------------

// MPricePoint is a single immutable price observation.
//
// Identity is (Ticker, Price, Timestamp, Source, Interval). OHLCV is
// supplementary and takes no part in Equal or Hash.
type MPricePoint struct {
	Ticker    string    `json:"ticker"`
	Price     MPrice    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Interval  Interval  `json:"interval"`
	OHLCV     *MOHLCV   `json:"ohlcv,omitempty"`
}

// NewPricePoint normalizes and validates a price point. The timestamp is
// converted to UTC and truncated to whole seconds.
func NewPricePoint(ticker string, price MPrice, ts time.Time, source Source, interval Interval, ohlcv *MOHLCV) (MPricePoint, error) {
	p := MPricePoint{
		Ticker:    NormalizeTicker(ticker),
		Price:     MPrice{Amount: price.Amount, Currency: strings.ToUpper(strings.TrimSpace(price.Currency))},
		Timestamp: ts.UTC().Truncate(time.Second),
		Source:    source,
		Interval:  interval,
	}
	if ohlcv != nil {
		c := *ohlcv
		p.OHLCV = &c
	}
	if err := p.Validate(); err != nil {
		return MPricePoint{}, err
	}
	return p, nil
}

// NormalizeTicker upper-cases and trims a symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Validate checks the point invariants.
func (p MPricePoint) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("ticker is empty")
	}
	if !p.Price.Amount.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", p.Price.Amount)
	}
	if p.Price.Currency == "" {
		return fmt.Errorf("currency is empty")
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is zero")
	}
	if p.Timestamp.Location() != time.UTC {
		return fmt.Errorf("timestamp %s is not UTC", p.Timestamp)
	}
	if !p.Source.Valid() {
		return fmt.Errorf("unknown source %q", p.Source)
	}
	if !p.Interval.Valid() {
		return fmt.Errorf("unknown interval %q", p.Interval)
	}
	if p.OHLCV != nil {
		if err := p.OHLCV.Validate(); err != nil {
			return fmt.Errorf("ohlcv: %w", err)
		}
	}
	return nil
}

// WithSource returns a relabeled copy; the receiver is left untouched.
func (p MPricePoint) WithSource(source Source) MPricePoint {
	c := p
	c.Source = source
	if p.OHLCV != nil {
		o := *p.OHLCV
		c.OHLCV = &o
	}
	return c
}

// WithInterval returns a copy labeled with interval.
func (p MPricePoint) WithInterval(interval Interval) MPricePoint {
	c := p.WithSource(p.Source)
	c.Interval = interval
	return c
}

// Equal compares two points by identity fields only.
func (p MPricePoint) Equal(o MPricePoint) bool {
	return p.Ticker == o.Ticker &&
		p.Price.Amount.Equal(o.Price.Amount) &&
		p.Price.Currency == o.Price.Currency &&
		p.Timestamp.Equal(o.Timestamp) &&
		p.Source == o.Source &&
		p.Interval == o.Interval
}

// Hash is consistent with Equal: it covers exactly the identity fields.
func (p MPricePoint) Hash() uint64 {
	h := fnv.New64a()
	for _, part := range []string{
		p.Ticker,
		p.Price.Amount.String(), // normalized, so 150.00 and 150 hash alike
		p.Price.Currency,
		strconv.FormatInt(p.Timestamp.UnixNano(), 10),
		string(p.Source),
		string(p.Interval),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (p MPricePoint) String() string {
	return fmt.Sprintf("%s %s @ %s [%s/%s]", p.Ticker, p.Price, p.Timestamp.Format(time.RFC3339), p.Source, p.Interval)
}
