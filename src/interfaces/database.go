package interfaces

import (
	"context"
	"time"

	"market-engine/src/models"
)

// -----------------------------------------------------------------------------
// IPriceStore is the durable Tier-2 store keyed by (ticker, timestamp, interval).
// -----------------------------------------------------------------------------

type IPriceStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Save upserts one point; on conflict the incoming values win.
	Save(ctx context.Context, point models.MPricePoint) error

	// -----------------------------------------------------------------------------

	// SaveBulk upserts a batch of points in one transaction.
	SaveBulk(ctx context.Context, points []models.MPricePoint) error

	// -----------------------------------------------------------------------------

	// Latest returns the most recent point for a ticker across intervals.
	// found is false when the ticker has no rows.
	Latest(ctx context.Context, ticker string) (point models.MPricePoint, found bool, err error)

	// -----------------------------------------------------------------------------

	// Range returns points with start <= timestamp <= end, ascending.
	Range(ctx context.Context, ticker string, start, end time.Time) ([]models.MPricePoint, error)

	// -----------------------------------------------------------------------------

	// Tickers lists every ticker with at least one stored row.
	Tickers(ctx context.Context) ([]string, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than retentionDays. Zero keeps all.
	CleanupOldData(ctx context.Context, retentionDays int) (int64, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
