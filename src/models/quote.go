package models

import "time"

// DegradeReason explains why a response was served degraded or not at all.
type DegradeReason string

const (
	ReasonRateLimited   DegradeReason = "rate_limited"
	ReasonProviderError DegradeReason = "provider_error"
	ReasonNoData        DegradeReason = "no_data"
)

// MQuote is the answer to a current-price request.
// Stale and Reason are only set when the gateway degraded to cached data.
type MQuote struct {
	MPricePoint
	Stale  bool          `json:"stale"`
	Reason DegradeReason `json:"reason,omitempty"`
}

// MSeries is the answer to a history request; Points are ascending by time.
type MSeries struct {
	Ticker   string        `json:"ticker"`
	Interval Interval      `json:"interval"`
	Points   []MPricePoint `json:"points"`
	Stale    bool          `json:"stale"`
	Reason   DegradeReason `json:"reason,omitempty"`
}

// MQuota is a snapshot of the two rate-limit windows for one scope.
type MQuota struct {
	Scope           string    `json:"scope"`
	MinuteRemaining int64     `json:"minute_remaining"`
	MinuteResetAt   time.Time `json:"minute_reset_at"`
	DayRemaining    int64     `json:"day_remaining"`
	DayResetAt      time.Time `json:"day_reset_at"`
}

// MAcquireResult is the outcome of a single try-acquire.
type MAcquireResult struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after"`
	Quota      MQuota        `json:"quota"`
}
