package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

const krakenURL = "wss://ws.kraken.com"

type Kraken struct {
	url    string
	pairs  []string
	byPair map[string]model.Symbol
}

func NewKraken(symbols []model.Symbol) *Kraken {
	k := &Kraken{
		url:    krakenURL,
		byPair: make(map[string]model.Symbol, len(symbols)),
	}
	for _, s := range symbols {
		pair, stored := krakenPair(s)
		if _, dup := k.byPair[pair]; dup {
			continue
		}
		k.byPair[pair] = stored
		k.pairs = append(k.pairs, pair)
	}
	return k
}

func (k *Kraken) Name() string { return NameKraken }

func (k *Kraken) URL() string { return k.url }

func (k *Kraken) SubscriptionMessage() ([]byte, error) {
	type subscription struct {
		Name string `json:"name"`
	}
	return json.Marshal(struct {
		Event        string       `json:"event"`
		Pair         []string     `json:"pair"`
		Subscription subscription `json:"subscription"`
	}{"subscribe", k.pairs, subscription{Name: "trade"}})
}

// ParseMessage handles [channelID, [[price, volume, time, side, ...], ...],
// "trade", pair]. Object frames are system events and are ignored. A bad
// entry is skipped; the rest of the batch is still returned.
func (k *Kraken) ParseMessage(raw []byte, receivedAt time.Time) ([]model.TradeEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, malformed("kraken: empty frame")
	}
	if raw[0] == '{' {
		if !json.Valid(raw) {
			return nil, malformed("kraken: invalid event frame")
		}
		return nil, nil
	}

	var msg []json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, malformed("kraken: %v", err)
	}
	if len(msg) < 4 {
		return nil, nil
	}
	var channel string
	if err := json.Unmarshal(msg[len(msg)-2], &channel); err != nil || channel != "trade" {
		return nil, nil
	}

	var pair string
	if err := json.Unmarshal(msg[len(msg)-1], &pair); err != nil {
		return nil, malformed("kraken: pair: %v", err)
	}
	sym, ok := k.byPair[pair]
	if !ok {
		return nil, nil
	}

	var entries [][]json.RawMessage
	if err := json.Unmarshal(msg[1], &entries); err != nil {
		return nil, malformed("kraken: trades: %v", err)
	}

	out := make([]model.TradeEvent, 0, len(entries))
	var firstErr error
	skipped := 0
	for _, entry := range entries {
		ev, err := k.parseEntry(entry, sym, receivedAt)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			skipped++
			continue
		}
		out = append(out, ev)
	}
	if skipped == 0 {
		return out, nil
	}
	if len(out) == 0 {
		return nil, firstErr
	}
	return out, fmt.Errorf("kraken: skipped %d of %d trade entries: %w", skipped, len(entries), firstErr)
}

func (k *Kraken) parseEntry(entry []json.RawMessage, sym model.Symbol, receivedAt time.Time) (model.TradeEvent, error) {
	if len(entry) < 4 {
		return model.TradeEvent{}, malformed("kraken: trade entry has %d fields", len(entry))
	}
	var fields [4]string
	for i := range fields {
		if err := json.Unmarshal(entry[i], &fields[i]); err != nil {
			return model.TradeEvent{}, malformed("kraken: trade field %d: %v", i, err)
		}
	}

	price, err := decimal.NewFromString(fields[0])
	if err != nil {
		return model.TradeEvent{}, malformed("kraken price %q", fields[0])
	}
	amount, err := decimal.NewFromString(fields[1])
	if err != nil {
		return model.TradeEvent{}, malformed("kraken volume %q", fields[1])
	}
	ts, err := model.ParseUnix(fields[2])
	if err != nil {
		return model.TradeEvent{}, malformed("kraken time %q", fields[2])
	}

	side := model.SideSell
	if len(fields[3]) > 0 && (fields[3][0] == 'b' || fields[3][0] == 'B') {
		side = model.SideBuy
	}

	ev := model.TradeEvent{
		Exchange:    NameKraken,
		Symbol:      sym,
		EventTime:   ts,
		ReceiptTime: receivedAt.UTC(),
		Price:       price,
		Amount:      amount,
		Side:        side,
	}
	if err := ev.Validate(); err != nil {
		return model.TradeEvent{}, malformed("kraken: %v", err)
	}
	return ev, nil
}
