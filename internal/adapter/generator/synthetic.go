package generator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

const Name = "synthetic"

// Synthetic emits random-walk trades for a fixed symbol set, one per symbol
// per tick. It stands in for a live exchange during local development.
type Synthetic struct {
	symbols  []model.Symbol
	interval time.Duration
	log      *slog.Logger
	rnd      *rand.Rand
	prices   map[model.Symbol]float64
}

func NewSynthetic(symbols []model.Symbol, interval time.Duration, log *slog.Logger) *Synthetic {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	s := &Synthetic{
		symbols:  symbols,
		interval: interval,
		log:      log.With("exchange", Name),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:   make(map[model.Symbol]float64, len(symbols)),
	}
	for _, sym := range symbols {
		s.prices[sym] = s.rnd.Float64()*100 + 1
	}
	return s
}

func (s *Synthetic) Name() string { return Name }

func (s *Synthetic) Run(ctx context.Context, pub port.TradePublisher) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("synthetic feed started", "symbols", len(s.symbols), "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("synthetic feed stopped")
			return ctx.Err()
		case <-ticker.C:
			for _, sym := range s.symbols {
				if err := pub.Publish(ctx, s.next(sym)); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					s.log.Warn("publish failed", "symbol", sym.Dash(), "error", err)
				}
			}
		}
	}
}

func (s *Synthetic) next(sym model.Symbol) model.TradeEvent {
	price := s.prices[sym] * (1 + s.rnd.NormFloat64()*0.001)
	if price < 0.01 {
		price = 0.01
	}
	s.prices[sym] = price

	side := model.SideBuy
	if s.rnd.Intn(2) == 0 {
		side = model.SideSell
	}

	now := time.Now().UTC()
	return model.TradeEvent{
		Exchange:    Name,
		Symbol:      sym,
		EventTime:   now,
		ReceiptTime: now,
		Price:       decimal.NewFromFloat(price).Round(4),
		Amount:      decimal.NewFromFloat(s.rnd.Float64() + 0.001).Round(6),
		Side:        side,
	}
}
