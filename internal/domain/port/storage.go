package port

import (
	"context"
	"errors"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

// ErrUnsupported is returned by a bucket source that cannot answer a kind
// of query at all. The aggregator moves on to the next source.
var ErrUnsupported = errors.New("not supported by source")

// TradeStore is the append-only durable store of persisted trades.
type TradeStore interface {
	// InsertTrades writes all rows in one transaction.
	InsertTrades(ctx context.Context, trades []model.PersistedTrade) error
	RecentTrades(ctx context.Context, q model.TradeQuery) ([]model.PersistedTrade, error)
	Coverage(ctx context.Context, exchange, symbol string) (model.Coverage, error)
	Ping(ctx context.Context) error
	Close() error
}

// BucketSource answers bucketed range queries. Implementations must derive
// bucket boundaries as multiples of Width seconds since the unix epoch.
type BucketSource interface {
	Name() string
	Series(ctx context.Context, q model.BucketQuery) ([]model.SeriesPoint, error)
	Candles(ctx context.Context, q model.BucketQuery) ([]model.Candle, error)
}
