package port

import (
	"context"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

// LatestCache is the TTL-expiring hot cache plus the tick notification
// channels.
type LatestCache interface {
	SetLatest(ctx context.Context, trade model.LatestTrade) error
	GetLatest(ctx context.Context, exchange, symbol string) (*model.LatestTrade, error)
	Ping(ctx context.Context) error
	Close() error
}
