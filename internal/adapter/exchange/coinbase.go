package exchange

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

const coinbaseURL = "wss://ws-feed.exchange.coinbase.com"

type Coinbase struct {
	url       string
	products  []string
	byProduct map[string]model.Symbol
}

func NewCoinbase(symbols []model.Symbol) *Coinbase {
	c := &Coinbase{
		url:       coinbaseURL,
		byProduct: make(map[string]model.Symbol, len(symbols)),
	}
	for _, s := range symbols {
		id := s.Dash()
		if _, dup := c.byProduct[id]; dup {
			continue
		}
		c.byProduct[id] = s
		c.products = append(c.products, id)
	}
	return c
}

func (c *Coinbase) Name() string { return NameCoinbase }

func (c *Coinbase) URL() string { return c.url }

func (c *Coinbase) SubscriptionMessage() ([]byte, error) {
	return json.Marshal(struct {
		Type       string   `json:"type"`
		ProductIDs []string `json:"product_ids"`
		Channels   []string `json:"channels"`
	}{"subscribe", c.products, []string{"matches"}})
}

type coinbaseMatch struct {
	Type      string `json:"type"`
	TradeID   int64  `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

// ParseMessage handles "match" frames. The side is kept as reported by the
// feed.
func (c *Coinbase) ParseMessage(raw []byte, receivedAt time.Time) ([]model.TradeEvent, error) {
	var msg coinbaseMatch
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, malformed("coinbase: %v", err)
	}
	if msg.Type != "match" {
		return nil, nil
	}

	sym, ok := c.byProduct[msg.ProductID]
	if !ok {
		return nil, nil
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return nil, malformed("coinbase price %q", msg.Price)
	}
	amount, err := decimal.NewFromString(msg.Size)
	if err != nil {
		return nil, malformed("coinbase size %q", msg.Size)
	}

	ts := receivedAt
	if msg.Time != "" {
		parsed, err := time.Parse(time.RFC3339Nano, msg.Time)
		if err == nil {
			ts = parsed
		}
	}

	ev := model.TradeEvent{
		Exchange:    NameCoinbase,
		Symbol:      sym,
		EventTime:   ts.UTC(),
		ReceiptTime: receivedAt.UTC(),
		Price:       price,
		Amount:      amount,
		Side:        model.ParseSide(msg.Side),
	}
	if err := ev.Validate(); err != nil {
		return nil, malformed("coinbase: %v", err)
	}
	return []model.TradeEvent{ev}, nil
}
