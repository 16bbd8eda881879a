package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent(price string) model.TradeEvent {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.TradeEvent{
		Exchange:    "Coinbase",
		Symbol:      model.Symbol{Base: "BTC", Quote: "USD"},
		EventTime:   ts,
		ReceiptTime: ts.Add(20 * time.Millisecond),
		Price:       decimal.RequireFromString(price),
		Amount:      decimal.RequireFromString("0.1"),
		Side:        model.SideBuy,
	}
}

type fakeCache struct {
	mu       sync.Mutex
	failures int
	block    bool
	calls    int
	latest   []model.LatestTrade
}

func (c *fakeCache) SetLatest(ctx context.Context, trade model.LatestTrade) error {
	c.mu.Lock()
	c.calls++
	block := c.block
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = append(c.latest, trade)
	return nil
}

func (c *fakeCache) GetLatest(context.Context, string, string) (*model.LatestTrade, error) {
	return nil, nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) Close() error { return nil }

type fakeAppender struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []model.TradeEvent
}

func (a *fakeAppender) Append(_ context.Context, event model.TradeEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failures != 0 {
		if a.failures > 0 {
			a.failures--
		}
		return errors.New("log unavailable")
	}
	a.events = append(a.events, event)
	return nil
}

// flakyStore fails the first failures inserts, then delegates.
type flakyStore struct {
	port.TradeStore

	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) InsertTrades(ctx context.Context, trades []model.PersistedTrade) error {
	s.mu.Lock()
	s.attempts++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return errors.New("database unavailable")
	}
	return s.TradeStore.InsertTrades(ctx, trades)
}

type fakeSource struct {
	name    string
	series  []model.SeriesPoint
	candles []model.Candle
	err     error

	calls int
	last  model.BucketQuery
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Series(_ context.Context, q model.BucketQuery) ([]model.SeriesPoint, error) {
	f.calls++
	f.last = q
	return f.series, f.err
}

func (f *fakeSource) Candles(_ context.Context, q model.BucketQuery) ([]model.Candle, error) {
	f.calls++
	f.last = q
	return f.candles, f.err
}
