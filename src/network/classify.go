package network

import (
	"errors"
	"net/http"

	"market-engine/src/helpers"
	"market-engine/src/models"
)

// Classify maps a transport-level failure onto the provider error taxonomy.
func Classify(ticker string, err error) error {
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return helpers.NewNotFound(ticker, err)
		case se.StatusCode == http.StatusTooManyRequests:
			return helpers.NewUnavailable(ticker, models.ReasonRateLimited, se.RetryAfter, err)
		default:
			return helpers.NewUnavailable(ticker, models.ReasonProviderError, se.RetryAfter, err)
		}
	}

	return helpers.NewUnavailable(ticker, models.ReasonProviderError, 0, err)
}
