package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

type PublisherOptions struct {
	Attempts       int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

func DefaultPublisherOptions() PublisherOptions {
	return PublisherOptions{
		Attempts:       3,
		AttemptTimeout: 2 * time.Second,
		RetryDelay:     100 * time.Millisecond,
	}
}

// Publisher fans a trade out to the hot cache, the tick channels and the
// durable log. The effects are independent: one failing does not undo or
// skip the other. Delivery is at-least-once: an attempt that timed out after
// the server applied it is retried, so the log can hold a duplicate entry
// and subscribers can see a repeated tick.
type Publisher struct {
	cache    port.LatestCache
	tradeLog port.TradeAppender
	opts     PublisherOptions
	logger   *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

func NewPublisher(cache port.LatestCache, tradeLog port.TradeAppender, opts PublisherOptions, logger *slog.Logger) *Publisher {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultPublisherOptions().AttemptTimeout
	}
	return &Publisher{
		cache:    cache,
		tradeLog: tradeLog,
		opts:     opts,
		logger:   logger.With("component", "publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, event model.TradeEvent) error {
	event.Exchange = strings.ToLower(strings.TrimSpace(event.Exchange))
	if err := event.Validate(); err != nil {
		p.failed.Add(1)
		return err
	}

	latest := model.NewLatestTrade(event)
	cacheErr := p.retry(ctx, "cache", func(ctx context.Context) error {
		return p.cache.SetLatest(ctx, latest)
	})
	logErr := p.retry(ctx, "log", func(ctx context.Context) error {
		return p.tradeLog.Append(ctx, event)
	})

	if err := errors.Join(cacheErr, logErr); err != nil {
		p.failed.Add(1)
		return err
	}
	p.published.Add(1)
	return nil
}

// Stats returns the number of fully published and partially or wholly
// failed trades.
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

func (p *Publisher) retry(ctx context.Context, effect string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.opts.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == p.opts.Attempts {
			break
		}

		p.logger.Debug("publish effect failed, retrying", "effect", effect, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * p.opts.RetryDelay):
		}
	}
	return fmt.Errorf("%s: %w", effect, err)
}
