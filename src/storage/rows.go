package storage

import (
	"database/sql"
	"fmt"
	"time"

	"market-engine/src/models"

	"github.com/shopspring/decimal"
)

// priceColumns is the column order shared by every insert and select.
const priceColumns = "ticker, ts, bar_interval, price, currency, source, open, high, low, close, volume, updated_at"

// -----------------------------------------------------------------------------

// rowArgs flattens a point into priceColumns order. Decimals travel as text.
func rowArgs(p models.MPricePoint, now time.Time) []any {
	var open, high, low, cls decimal.NullDecimal
	var volume sql.NullInt64
	if p.OHLCV != nil {
		open = decimal.NewNullDecimal(p.OHLCV.Open)
		high = decimal.NewNullDecimal(p.OHLCV.High)
		low = decimal.NewNullDecimal(p.OHLCV.Low)
		cls = decimal.NewNullDecimal(p.OHLCV.Close)
		volume = sql.NullInt64{Int64: p.OHLCV.Volume, Valid: true}
	}
	return []any{
		p.Ticker,
		p.Timestamp.Unix(),
		string(p.Interval),
		p.Price.Amount.String(),
		p.Price.Currency,
		string(p.Source),
		open, high, low, cls, volume,
		now.Unix(),
	}
}

// -----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPoint reads one row selected with priceColumns.
func scanPoint(row rowScanner) (models.MPricePoint, error) {
	var (
		ticker, interval, currency, source string
		ts, updatedAt                      int64
		price                              decimal.Decimal
		open, high, low, cls               decimal.NullDecimal
		volume                             sql.NullInt64
	)
	if err := row.Scan(&ticker, &ts, &interval, &price, &currency, &source,
		&open, &high, &low, &cls, &volume, &updatedAt); err != nil {
		return models.MPricePoint{}, err
	}

	var ohlcv *models.MOHLCV
	if open.Valid && high.Valid && low.Valid && cls.Valid {
		ohlcv = &models.MOHLCV{
			Open:   open.Decimal,
			High:   high.Decimal,
			Low:    low.Decimal,
			Close:  cls.Decimal,
			Volume: volume.Int64,
		}
	}

	p, err := models.NewPricePoint(ticker, models.MPrice{Amount: price, Currency: currency},
		time.Unix(ts, 0), models.Source(source), models.Interval(interval), ohlcv)
	if err != nil {
		return models.MPricePoint{}, fmt.Errorf("stored row %s@%d/%s: %w", ticker, ts, interval, err)
	}
	return p, nil
}

// -----------------------------------------------------------------------------

func scanPoints(rows *sql.Rows) ([]models.MPricePoint, error) {
	defer rows.Close()

	var points []models.MPricePoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func validatePoints(points []models.MPricePoint) error {
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("refusing to store %s: %w", p, err)
		}
	}
	return nil
}
