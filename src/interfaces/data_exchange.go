package interfaces

import (
	"context"
	"time"

	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// IMarketDataGateway is the public contract consumed by valuation code, the
// HTTP layer and the refresh job.
// -----------------------------------------------------------------------------

type IMarketDataGateway interface {
	GetCurrentPrice(ctx context.Context, ticker string) (models.MQuote, error)
	GetPriceHistory(ctx context.Context, ticker string, start, end time.Time, interval models.Interval) (models.MSeries, error)
	GetRemainingQuota(ctx context.Context, scope string) (models.MQuota, error)
}
