package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-engine/src/logger"
	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

// Sentinels for errors.Is checks across the typed errors below.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
	ErrUnavailable = errors.New("unavailable")
)

type MarketDataError struct {
	Message string
	Cause   error
}

func (e *MarketDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketDataError) Unwrap() error {
	return e.Cause
}

type ConfigurationError struct{ MarketDataError }
type DatabaseError struct{ MarketDataError }
type ValidationError struct{ MarketDataError }

// NotFoundError means the provider does not know the symbol. Permanent.
type NotFoundError struct {
	MarketDataError
	Ticker string
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidDataError means a provider payload was malformed or inconsistent.
// Permanent for the call; Payload keeps the raw bytes for diagnosis.
type InvalidDataError struct {
	MarketDataError
	Ticker  string
	Payload []byte
}

func (e *InvalidDataError) Is(target error) bool { return target == ErrInvalidData }

// UnavailableError is transient: rate limited or provider failure.
type UnavailableError struct {
	MarketDataError
	Ticker     string
	Reason     models.DegradeReason
	RetryAfter time.Duration
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// -----------------------------------------------------------------------------

func NewNotFound(ticker string, cause error) *NotFoundError {
	return &NotFoundError{
		MarketDataError: MarketDataError{Message: fmt.Sprintf("unknown symbol %s", ticker), Cause: cause},
		Ticker:          ticker,
	}
}

func NewInvalidData(ticker string, payload []byte, format string, args ...interface{}) *InvalidDataError {
	return &InvalidDataError{
		MarketDataError: MarketDataError{Message: fmt.Sprintf("invalid data for %s: %s", ticker, fmt.Sprintf(format, args...))},
		Ticker:          ticker,
		Payload:         payload,
	}
}

func NewUnavailable(ticker string, reason models.DegradeReason, retryAfter time.Duration, cause error) *UnavailableError {
	return &UnavailableError{
		MarketDataError: MarketDataError{Message: fmt.Sprintf("%s unavailable (%s)", ticker, reason), Cause: cause},
		Ticker:          ticker,
		Reason:          reason,
		RetryAfter:      retryAfter,
	}
}

func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{MarketDataError{Message: fmt.Sprintf(format, args...)}}
}

func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{MarketDataError{Message: message, Cause: cause}}
}

func NewDatabase(op string, cause error) *DatabaseError {
	return &DatabaseError{MarketDataError{Message: op + " failed", Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsPermanent reports errors that must never be retried automatically.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidData)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
// It is meant for startup connectivity; quota-bound provider calls are never retried.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &MarketDataError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}
