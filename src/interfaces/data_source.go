package interfaces

import (
	"context"
	"time"

	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// IPriceProvider is the external quote provider.
// -----------------------------------------------------------------------------

type IPriceProvider interface {

	// Name returns the unique identifier of the provider
	Name() string

	// -----------------------------------------------------------------------------

	// Scope is the rate-limit accounting unit this provider consumes
	// (typically one credential).
	Scope() string

	// -----------------------------------------------------------------------------

	// FetchQuote retrieves the current quote. Errors are classified as
	// helpers.NotFoundError, helpers.InvalidDataError or helpers.UnavailableError.
	FetchQuote(ctx context.Context, ticker string) (models.MPricePoint, error)

	// -----------------------------------------------------------------------------

	// FetchHistory retrieves bars in [start, end], ascending by timestamp.
	FetchHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) ([]models.MPricePoint, error)
}
