package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/metacoder87/investment-matrix/internal/application/bucket"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

const (
	SourceNative     = "timescale"
	SourceFallback   = "trades"
	SourceHistorical = "prices"
)

// pgUndefinedFunction is raised when time_bucket/first/last are missing,
// i.e. the TimescaleDB extension is not installed.
const pgUndefinedFunction = "42883"

// NativeSource pushes bucketing down to TimescaleDB. Buckets are anchored at
// the unix epoch so they line up with bucket.Key.
type NativeSource struct {
	store *Store
}

func NewNativeSource(store *Store) *NativeSource {
	return &NativeSource{store: store}
}

func (n *NativeSource) Name() string { return SourceNative }

const nativeSeriesQuery = `
SELECT time_bucket($1::bigint * INTERVAL '1 second', timestamp, TIMESTAMPTZ 'epoch') AS bucket,
	AVG(price)::float8, SUM(amount)::float8, COUNT(*)
FROM market_trades
WHERE exchange = $2 AND symbol = $3 AND timestamp >= $4 AND timestamp <= $5
GROUP BY bucket
ORDER BY bucket`

const nativeCandleQuery = `
SELECT time_bucket($1::bigint * INTERVAL '1 second', timestamp, TIMESTAMPTZ 'epoch') AS bucket,
	first(price, timestamp)::float8, MAX(price)::float8, MIN(price)::float8, last(price, timestamp)::float8,
	SUM(amount)::float8, COUNT(*)
FROM market_trades
WHERE exchange = $2 AND symbol = $3 AND timestamp >= $4 AND timestamp <= $5
GROUP BY bucket
ORDER BY bucket`

func (n *NativeSource) Series(ctx context.Context, q model.BucketQuery) ([]model.SeriesPoint, error) {
	if n.store.dialect != DialectPostgres {
		return nil, port.ErrUnsupported
	}
	rows, err := n.store.db.QueryContext(ctx, nativeSeriesQuery, q.Width, q.Exchange, q.Symbol, q.Start.UTC(), q.End.UTC())
	if err != nil {
		return nil, nativeError(err)
	}
	defer rows.Close()

	var out []model.SeriesPoint
	for rows.Next() {
		var p model.SeriesPoint
		if err := rows.Scan(&p.BucketStart, &p.AvgPrice, &p.Volume, &p.TradeCount); err != nil {
			return nil, fmt.Errorf("failed to scan series bucket: %w", err)
		}
		p.BucketStart = p.BucketStart.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nativeError(err)
	}
	return out, nil
}

func (n *NativeSource) Candles(ctx context.Context, q model.BucketQuery) ([]model.Candle, error) {
	if n.store.dialect != DialectPostgres {
		return nil, port.ErrUnsupported
	}
	rows, err := n.store.db.QueryContext(ctx, nativeCandleQuery, q.Width, q.Exchange, q.Symbol, q.Start.UTC(), q.End.UTC())
	if err != nil {
		return nil, nativeError(err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.BucketStart, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.TradeCount); err != nil {
			return nil, fmt.Errorf("failed to scan candle bucket: %w", err)
		}
		c.BucketStart = c.BucketStart.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nativeError(err)
	}
	return out, nil
}

func nativeError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedFunction {
		return fmt.Errorf("%w: %s", port.ErrUnsupported, pqErr.Message)
	}
	return fmt.Errorf("native bucket query failed: %w", err)
}

// FallbackSource folds raw trades in process. It works on any dialect.
type FallbackSource struct {
	store *Store
}

func NewFallbackSource(store *Store) *FallbackSource {
	return &FallbackSource{store: store}
}

func (f *FallbackSource) Name() string { return SourceFallback }

const rangeTradesQuery = `
SELECT timestamp, price, amount
FROM market_trades
WHERE exchange = $1 AND symbol = $2 AND timestamp >= $3 AND timestamp <= $4
ORDER BY timestamp, id`

func (f *FallbackSource) scan(ctx context.Context, q model.BucketQuery, fn func(ts time.Time, price, amount float64)) error {
	rows, err := f.store.db.QueryContext(ctx, rangeTradesQuery, q.Exchange, q.Symbol, q.Start.UTC(), q.End.UTC())
	if err != nil {
		return fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts            time.Time
			price, amount float64
		)
		if err := rows.Scan(&ts, &price, &amount); err != nil {
			return fmt.Errorf("failed to scan trade: %w", err)
		}
		fn(ts, price, amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read trades: %w", err)
	}
	return nil
}

func (f *FallbackSource) Series(ctx context.Context, q model.BucketQuery) ([]model.SeriesPoint, error) {
	folder := bucket.NewSeriesFolder(q.Width)
	if err := f.scan(ctx, q, folder.Add); err != nil {
		return nil, err
	}
	return folder.Points(), nil
}

func (f *FallbackSource) Candles(ctx context.Context, q model.BucketQuery) ([]model.Candle, error) {
	folder := bucket.NewCandleFolder(q.Width)
	if err := f.scan(ctx, q, folder.Add); err != nil {
		return nil, err
	}
	return folder.Candles(), nil
}

// HistoricalSource reads the prices table of pre-aggregated OHLCV bars. The
// table carries no exchange column, so bars match on symbol only.
type HistoricalSource struct {
	store *Store
}

func NewHistoricalSource(store *Store) *HistoricalSource {
	return &HistoricalSource{store: store}
}

func (h *HistoricalSource) Name() string { return SourceHistorical }

func (h *HistoricalSource) Series(context.Context, model.BucketQuery) ([]model.SeriesPoint, error) {
	return nil, port.ErrUnsupported
}

const priceBarsQuery = `
SELECT timestamp, open, high, low, close, volume
FROM prices
WHERE symbol = $1 AND timestamp >= $2 AND timestamp <= $3
ORDER BY timestamp`

func (h *HistoricalSource) Candles(ctx context.Context, q model.BucketQuery) ([]model.Candle, error) {
	rows, err := h.store.db.QueryContext(ctx, priceBarsQuery, q.Symbol, q.Start.UTC(), q.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars: %w", err)
	}
	defer rows.Close()

	folder := bucket.NewCandleFolder(q.Width)
	for rows.Next() {
		var (
			ts                              time.Time
			open, high, low, closing, volume sql.NullFloat64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closing, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		if !closing.Valid {
			continue
		}
		c := closing.Float64
		folder.AddBar(ts, orFloat(open, c), orFloat(high, c), orFloat(low, c), c, orFloat(volume, 0))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read price bars: %w", err)
	}
	return folder.Candles(), nil
}

func orFloat(v sql.NullFloat64, def float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return def
}
