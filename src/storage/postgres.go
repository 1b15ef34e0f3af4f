package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresPriceStore struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresPriceStore(cfg *models.MStorageConfig, log *logger.Logger) (*PostgresPriceStore, error) {
	if cfg.DBConnectionString == "" {
		return nil, helpers.NewConfigurationError("postgres store needs storage.db_connection_string", nil)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "market_data"
	}
	return &PostgresPriceStore{
		Config: cfg,
		Schema: schema,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return helpers.NewDatabase("open postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewDatabase("ping postgres", err)
	}
	d.DB = db

	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(d.Schema))); err != nil {
		return helpers.NewDatabase(fmt.Sprintf("create schema %s", d.Schema), err)
	}

	if err := d.createTables(ctx); err != nil {
		return err
	}

	d.Logger.Info("PostgresPriceStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) table() string {
	return pq.QuoteIdentifier(d.Schema) + ".price_points"
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ticker TEXT NOT NULL,
			ts BIGINT NOT NULL,
			bar_interval TEXT NOT NULL,
			price NUMERIC NOT NULL,
			currency TEXT NOT NULL,
			source TEXT NOT NULL,
			open NUMERIC,
			high NUMERIC,
			low NUMERIC,
			close NUMERIC,
			volume BIGINT,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (ticker, ts, bar_interval)
		);
	`, d.table())
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return helpers.NewDatabase("create price_points", err)
	}

	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_price_points_ts ON %s (ts)`, d.table())
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return helpers.NewDatabase("create idx_price_points_ts", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) Save(ctx context.Context, point models.MPricePoint) error {
	return d.SaveBulk(ctx, []models.MPricePoint{point})
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) SaveBulk(ctx context.Context, points []models.MPricePoint) error {
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

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (ticker, ts, bar_interval) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			source = EXCLUDED.source,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at
	`, d.table(), priceColumns))
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

func (d *PostgresPriceStore) Latest(ctx context.Context, ticker string) (models.MPricePoint, bool, error) {
	row := d.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ticker = $1
		ORDER BY ts DESC, bar_interval ASC
		LIMIT 1
	`, priceColumns, d.table()), models.NormalizeTicker(ticker))

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

func (d *PostgresPriceStore) Range(ctx context.Context, ticker string, start, end time.Time) ([]models.MPricePoint, error) {
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ticker = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC, bar_interval ASC
	`, priceColumns, d.table()), models.NormalizeTicker(ticker), start.Unix(), end.Unix())
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

func (d *PostgresPriceStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT ticker FROM %s ORDER BY ticker`, d.table()))
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

func (d *PostgresPriceStore) CleanupOldData(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up data older than %d days (ts < %d)...", retentionDays, cutoff)

	res, err := d.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, d.table()), cutoff)
	if err != nil {
		return 0, helpers.NewDatabase("cleanup", err)
	}
	n, _ := res.RowsAffected()

	d.Logger.Info("Cleanup completed, %d rows removed", n)
	return n, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresPriceStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
