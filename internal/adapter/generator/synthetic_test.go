package generator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

type collectPublisher struct {
	mu     sync.Mutex
	events []model.TradeEvent
}

func (p *collectPublisher) Publish(_ context.Context, ev model.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *collectPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestSyntheticEmitsValidTrades(t *testing.T) {
	syms, err := model.ParseSymbolList("BTC-USD,ETH-USD")
	require.NoError(t, err)

	s := NewSynthetic(syms, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "synthetic", s.Name())

	pub := &collectPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, pub) }()

	assert.Eventually(t, func() bool { return pub.count() >= 10 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	seen := map[string]bool{}
	for _, ev := range pub.events {
		require.NoError(t, ev.Validate())
		assert.Equal(t, "synthetic", ev.Exchange)
		assert.NotEqual(t, model.SideUnknown, ev.Side)
		seen[ev.Symbol.Dash()] = true
	}
	assert.Equal(t, map[string]bool{"BTC-USD": true, "ETH-USD": true}, seen)
}
