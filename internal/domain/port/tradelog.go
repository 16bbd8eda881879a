package port

import (
	"context"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

// TradeAppender appends trades to the size-bounded durable log.
type TradeAppender interface {
	Append(ctx context.Context, event model.TradeEvent) error
}

// TradeLogConsumer reads the durable log as a member of a consumer group.
// With pending set, Read returns entries already delivered to consumer but
// not yet acknowledged, starting from the oldest; block is ignored then.
type TradeLogConsumer interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, count int, block time.Duration, pending bool) ([]model.LogEntry, error)
	Ack(ctx context.Context, ids ...string) error
}
