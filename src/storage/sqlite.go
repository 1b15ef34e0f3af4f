package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/logger"
	"market-engine/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLitePriceStore struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLitePriceStore(cfg *models.MStorageConfig, log *logger.Logger) (*SQLitePriceStore, error) {
	if cfg.DBPath == "" {
		return nil, helpers.NewConfigurationError("sqlite store needs storage.db_path", nil)
	}
	return &SQLitePriceStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return helpers.NewDatabase("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewDatabase("ping sqlite", err)
	}

	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	if err := d.createTables(ctx); err != nil {
		return err
	}

	d.Logger.Info("SQLite store ready at %s", d.Config.DBPath)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) createTables(ctx context.Context) error {
	// decimals are TEXT so no REAL affinity rounding happens
	query := `
		CREATE TABLE IF NOT EXISTS price_points (
			ticker TEXT NOT NULL,
			ts INTEGER NOT NULL,
			bar_interval TEXT NOT NULL,
			price TEXT NOT NULL,
			currency TEXT NOT NULL,
			source TEXT NOT NULL,
			open TEXT,
			high TEXT,
			low TEXT,
			close TEXT,
			volume INTEGER,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (ticker, ts, bar_interval)
		);
	`
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return helpers.NewDatabase("create price_points", err)
	}
	if _, err := d.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_price_points_ts ON price_points (ts)`); err != nil {
		return helpers.NewDatabase("create idx_price_points_ts", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Save(ctx context.Context, point models.MPricePoint) error {
	return d.SaveBulk(ctx, []models.MPricePoint{point})
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) SaveBulk(ctx context.Context, points []models.MPricePoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return helpers.NewValidation("%v", err)
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabase("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (`+priceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, ts, bar_interval) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			source = excluded.source,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return helpers.NewDatabase("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, rowArgs(p, now)...); err != nil {
			return helpers.NewDatabase(fmt.Sprintf("upsert %s", p), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabase("commit", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Latest(ctx context.Context, ticker string) (models.MPricePoint, bool, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT `+priceColumns+` FROM price_points
		WHERE ticker = ?
		ORDER BY ts DESC, bar_interval ASC
		LIMIT 1
	`, models.NormalizeTicker(ticker))

	p, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return models.MPricePoint{}, false, nil
	}
	if err != nil {
		return models.MPricePoint{}, false, helpers.NewDatabase("latest", err)
	}
	return p, true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Range(ctx context.Context, ticker string, start, end time.Time) ([]models.MPricePoint, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+priceColumns+` FROM price_points
		WHERE ticker = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, bar_interval ASC
	`, models.NormalizeTicker(ticker), start.Unix(), end.Unix())
	if err != nil {
		return nil, helpers.NewDatabase("range", err)
	}

	points, err := scanPoints(rows)
	if err != nil {
		return nil, helpers.NewDatabase("range scan", err)
	}
	return points, nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT DISTINCT ticker FROM price_points ORDER BY ticker`)
	if err != nil {
		return nil, helpers.NewDatabase("tickers", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, helpers.NewDatabase("tickers scan", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) CleanupOldData(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up data older than %d days (ts < %d)...", retentionDays, cutoff)

	res, err := d.DB.ExecContext(ctx, "DELETE FROM price_points WHERE ts < ?", cutoff)
	if err != nil {
		return 0, helpers.NewDatabase("cleanup", err)
	}
	n, _ := res.RowsAffected()

	d.Logger.Info("Cleanup completed, %d rows removed", n)
	return n, nil
}

// -----------------------------------------------------------------------------

func (d *SQLitePriceStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
