package interfaces

import (
	"context"
	"time"

	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// IPriceCache is the ephemeral Tier-1 cache. A miss is plain absence; nothing
// negative is ever cached.
// -----------------------------------------------------------------------------

type IPriceCache interface {
	Get(ctx context.Context, ticker string, interval models.Interval) (point models.MPricePoint, found bool, err error)
	Set(ctx context.Context, ticker string, interval models.Interval, point models.MPricePoint, ttl time.Duration) error
	Invalidate(ctx context.Context, ticker string, interval models.Interval) error
}
