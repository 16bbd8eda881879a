package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseUnix(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 123456000, time.UTC)
	raw := FormatUnix(ts)
	assert.Equal(t, "1704110400.123456", raw)

	back, err := ParseUnix(raw)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))

	whole, err := ParseUnix("1704110400")
	require.NoError(t, err)
	assert.Equal(t, int64(1704110400), whole.Unix())

	_, err = ParseUnix("yesterday")
	assert.Error(t, err)
}

func TestEncodeDecodeLogFields(t *testing.T) {
	ev := TradeEvent{
		Exchange:    "coinbase",
		Symbol:      Symbol{"BTC", "USD"},
		EventTime:   time.Unix(1704110400, 500000000).UTC(),
		ReceiptTime: time.Unix(1704110401, 0).UTC(),
		Price:       decimal.RequireFromString("42000.12345678"),
		Amount:      decimal.RequireFromString("0.00010000"),
		Side:        SideSell,
	}

	encoded := EncodeLogFields(ev)
	fields := make(map[string]string, len(encoded))
	for k, v := range encoded {
		fields[k] = v.(string)
	}
	assert.Equal(t, "42000.12345678", fields["price"])
	assert.Equal(t, "1704110400.5", fields["ts"])

	row, err := DecodeLogFields(fields)
	require.NoError(t, err)
	assert.Equal(t, "coinbase", row.Exchange)
	assert.Equal(t, "BTC-USD", row.Symbol)
	assert.True(t, ev.EventTime.Equal(row.EventTime))
	require.NotNil(t, row.ReceiptTime)
	assert.True(t, ev.ReceiptTime.Equal(*row.ReceiptTime))
	assert.True(t, ev.Price.Equal(row.Price))
	require.NotNil(t, row.Side)
	assert.Equal(t, "sell", *row.Side)
}

func TestDecodeLogFieldsOptional(t *testing.T) {
	row, err := DecodeLogFields(map[string]string{
		"exchange": "kraken",
		"symbol":   "ETH-USD",
		"ts":       "1704110400",
		"price":    "2000",
		"amount":   "1",
		"side":     "",
	})
	require.NoError(t, err)
	assert.Nil(t, row.ReceiptTime)
	assert.Nil(t, row.Side)
}

func TestDecodeLogFieldsMalformed(t *testing.T) {
	good := map[string]string{
		"exchange": "kraken", "symbol": "ETH-USD", "ts": "1704110400",
		"price": "2000", "amount": "1",
	}
	mutate := func(k, v string) map[string]string {
		out := make(map[string]string, len(good))
		for gk, gv := range good {
			out[gk] = gv
		}
		out[k] = v
		return out
	}

	for _, fields := range []map[string]string{
		mutate("exchange", ""),
		mutate("symbol", " "),
		mutate("ts", "not-a-time"),
		mutate("price", "NaN?"),
		mutate("amount", ""),
		mutate("recv_ts", "x"),
	} {
		_, err := DecodeLogFields(fields)
		assert.ErrorIs(t, err, ErrMalformedEntry)
	}
}

func TestTradeEventValidate(t *testing.T) {
	ev := TradeEvent{
		Exchange: "binance",
		Symbol:   Symbol{"BTC", "USDT"},
		Price:    decimal.NewFromInt(1),
		Amount:   decimal.NewFromInt(1),
	}
	require.NoError(t, ev.Validate())

	zero := ev
	zero.Price = decimal.Zero
	assert.ErrorIs(t, zero.Validate(), ErrInvalidTrade)

	neg := ev
	neg.Amount = decimal.NewFromInt(-1)
	assert.ErrorIs(t, neg.Validate(), ErrInvalidTrade)
}

func TestNewLatestTrade(t *testing.T) {
	lt := NewLatestTrade(TradeEvent{
		Exchange:    "binance",
		Symbol:      Symbol{"BTC", "USDT"},
		EventTime:   time.Unix(100, 250000000),
		ReceiptTime: time.Unix(101, 0),
		Price:       decimal.RequireFromString("98000.5"),
		Amount:      decimal.RequireFromString("0.1"),
	})
	assert.Equal(t, "BTC-USDT", lt.Symbol)
	assert.InDelta(t, 100.25, lt.TS, 1e-9)
	assert.Equal(t, 98000.5, lt.Price)
	assert.Nil(t, lt.Side)
}
