package interfaces

import (
	"context"
	"time"

	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// IRateLimiter guards a scope with a per-minute and a per-day window.
// -----------------------------------------------------------------------------

type IRateLimiter interface {

	// TryAcquire atomically consumes one token from both windows, or none.
	TryAcquire(ctx context.Context, scope string) (models.MAcquireResult, error)

	// Remaining reports capacity without consuming.
	Remaining(ctx context.Context, scope string) (models.MQuota, error)

	// WaitTime reports how long until a request could be admitted.
	WaitTime(ctx context.Context, scope string) (time.Duration, error)
}
