package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

type Binance struct {
	url      string
	streams  []string
	byMarket map[string]model.Symbol
}

func NewBinance(symbols []model.Symbol, tld string) *Binance {
	tld = strings.ToLower(strings.TrimSpace(tld))
	if tld == "" {
		tld = "com"
	}
	b := &Binance{
		url:      fmt.Sprintf("wss://stream.binance.%s:9443/ws", tld),
		byMarket: make(map[string]model.Symbol, len(symbols)),
	}
	for _, s := range symbols {
		market, stored := binanceMarket(s)
		if _, dup := b.byMarket[strings.ToUpper(market)]; dup {
			continue
		}
		b.byMarket[strings.ToUpper(market)] = stored
		b.streams = append(b.streams, market+"@trade")
	}
	return b
}

func (b *Binance) Name() string { return NameBinance }

func (b *Binance) URL() string { return b.url }

func (b *Binance) SubscriptionMessage() ([]byte, error) {
	return json.Marshal(struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int      `json:"id"`
	}{"SUBSCRIBE", b.streams, 1})
}

type binanceTrade struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

func (b *Binance) ParseMessage(raw []byte, receivedAt time.Time) ([]model.TradeEvent, error) {
	var msg binanceTrade
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, malformed("binance: %v", err)
	}
	if msg.Event != "trade" {
		return nil, nil
	}

	sym, ok := b.byMarket[strings.ToUpper(msg.Symbol)]
	if !ok {
		return nil, nil
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return nil, malformed("binance price %q", msg.Price)
	}
	amount, err := decimal.NewFromString(msg.Quantity)
	if err != nil {
		return nil, malformed("binance quantity %q", msg.Quantity)
	}

	ts := receivedAt
	switch {
	case msg.TradeTime > 0:
		ts = time.UnixMilli(msg.TradeTime)
	case msg.EventTime > 0:
		ts = time.UnixMilli(msg.EventTime)
	}

	// m is "buyer is maker": the taker, who sets the trade side, sold.
	side := model.SideBuy
	if msg.BuyerMaker {
		side = model.SideSell
	}

	ev := model.TradeEvent{
		Exchange:    NameBinance,
		Symbol:      sym,
		EventTime:   ts.UTC(),
		ReceiptTime: receivedAt.UTC(),
		Price:       price,
		Amount:      amount,
		Side:        side,
	}
	if err := ev.Validate(); err != nil {
		return nil, malformed("binance: %v", err)
	}
	return []model.TradeEvent{ev}, nil
}
