package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return ""
	}
}

// ParseSide maps "buy"/"b" and "sell"/"s" (any case) to a Side. Anything
// else is SideUnknown.
func ParseSide(raw string) Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "b":
		return SideBuy
	case "sell", "s":
		return SideSell
	default:
		return SideUnknown
	}
}

// TradeEvent is a single trade print in flight between an adapter and the
// durable store. EventTime is the exchange-reported time, ReceiptTime the
// local arrival time.
type TradeEvent struct {
	Exchange    string
	Symbol      Symbol
	EventTime   time.Time
	ReceiptTime time.Time
	Price       decimal.Decimal
	Amount      decimal.Decimal
	Side        Side
}

func (e TradeEvent) Validate() error {
	if strings.TrimSpace(e.Exchange) == "" {
		return fmt.Errorf("%w: empty exchange", ErrInvalidTrade)
	}
	if e.Symbol.Base == "" || e.Symbol.Quote == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidTrade)
	}
	if !e.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidTrade, e.Price)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", ErrInvalidTrade, e.Amount)
	}
	return nil
}

// PersistedTrade is a row of market_trades. ID is assigned by the store.
type PersistedTrade struct {
	ID          int64           `json:"-"`
	Exchange    string          `json:"exchange"`
	Symbol      string          `json:"symbol"`
	EventTime   time.Time       `json:"timestamp"`
	ReceiptTime *time.Time      `json:"receipt_timestamp"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Side        *string         `json:"side"`
}

// LatestTrade is the JSON record kept in the hot cache and sent on the tick
// channels.
type LatestTrade struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	TS       float64 `json:"ts"`
	RecvTS   float64 `json:"recv_ts"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
	Side     *string `json:"side"`
}

func NewLatestTrade(e TradeEvent) LatestTrade {
	lt := LatestTrade{
		Exchange: e.Exchange,
		Symbol:   e.Symbol.Dash(),
		TS:       unixSeconds(e.EventTime),
		RecvTS:   unixSeconds(e.ReceiptTime),
		Price:    e.Price.InexactFloat64(),
		Amount:   e.Amount.InexactFloat64(),
	}
	if e.Side != SideUnknown {
		side := e.Side.String()
		lt.Side = &side
	}
	return lt
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
