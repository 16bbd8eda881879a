package port

import (
	"context"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

// TradePublisher accepts canonical trades from exchange adapters. Publish
// must return in bounded time; a returned error never stops an adapter.
type TradePublisher interface {
	Publish(ctx context.Context, event model.TradeEvent) error
}

// TradeFeed produces trades until its context is cancelled.
type TradeFeed interface {
	Name() string
	Run(ctx context.Context, pub TradePublisher) error
}
