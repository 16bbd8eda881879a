package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

const (
	DefaultTradeLimit = 500
	MaxTradeLimit     = 5000
)

type TradesRequest struct {
	Exchange string
	Symbol   string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// MarketUseCase serves point reads: the cached latest tick, recent raw
// trades and per-symbol coverage.
type MarketUseCase struct {
	cache   port.LatestCache
	store   port.TradeStore
	symbols port.SymbolMapper
}

func NewMarketUseCase(cache port.LatestCache, store port.TradeStore, symbols port.SymbolMapper) *MarketUseCase {
	if symbols == nil {
		symbols = port.IdentitySymbols
	}
	return &MarketUseCase{
		cache:   cache,
		store:   store,
		symbols: symbols,
	}
}

func (uc *MarketUseCase) resolve(exchange, symbol string) (string, string, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	sym, err := model.ParseSymbol(symbol)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if exchange != "" {
		sym = uc.symbols(exchange, sym)
	}
	return exchange, sym.Dash(), nil
}

// Latest reads the hot cache. An empty exchange reads the per-symbol key,
// which holds whichever exchange printed last.
func (uc *MarketUseCase) Latest(ctx context.Context, exchange, symbol string) (*model.LatestTrade, error) {
	exchange, sym, err := uc.resolve(exchange, symbol)
	if err != nil {
		return nil, err
	}

	latest, err := uc.cache.GetLatest(ctx, exchange, sym)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no recent trade for %s", model.ErrNotFound, sym)
	}
	return latest, nil
}

func (uc *MarketUseCase) RecentTrades(ctx context.Context, req TradesRequest) ([]model.PersistedTrade, error) {
	exchange, sym, err := uc.resolve(req.Exchange, req.Symbol)
	if err != nil {
		return nil, err
	}

	q := model.TradeQuery{
		Exchange: exchange,
		Symbol:   sym,
		Limit:    ClampLimit(req.Limit),
	}
	if req.Since != nil {
		q.Since = req.Since.UTC()
	}
	if req.Until != nil {
		q.Until = req.Until.UTC()
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Since.After(q.Until) {
		return nil, fmt.Errorf("%w: since must be <= until", model.ErrValidation)
	}

	trades, err := uc.store.RecentTrades(ctx, q)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.PersistedTrade{}
	}
	return trades, nil
}

func (uc *MarketUseCase) Coverage(ctx context.Context, exchange, symbol string) (model.Coverage, error) {
	exchange, sym, err := uc.resolve(exchange, symbol)
	if err != nil {
		return model.Coverage{}, err
	}
	if exchange == "" {
		return model.Coverage{}, fmt.Errorf("%w: exchange is required", model.ErrValidation)
	}
	return uc.store.Coverage(ctx, exchange, sym)
}

// ClampLimit maps a requested row limit into [1, MaxTradeLimit]; zero means
// the default.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultTradeLimit
	case limit < 1:
		return 1
	case limit > MaxTradeLimit:
		return MaxTradeLimit
	default:
		return limit
	}
}
