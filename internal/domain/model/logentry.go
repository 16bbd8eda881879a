package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LogEntry is one record read back from the durable trade log.
type LogEntry struct {
	ID     string
	Fields map[string]string
}

var (
	microsPerSecond = decimal.NewFromInt(1_000_000)
	nanosPerSecond  = decimal.NewFromInt(1_000_000_000)
)

// FormatUnix renders t as unix seconds with up to microsecond precision,
// e.g. "1700000000.123456". Trailing zeros are dropped.
func FormatUnix(t time.Time) string {
	return decimal.NewFromInt(t.UnixMicro()).Div(microsPerSecond).String()
}

// ParseUnix is the inverse of FormatUnix. It accepts any decimal number of
// seconds and keeps nanosecond precision.
func ParseUnix(raw string) (time.Time, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	secs := d.Floor()
	nanos := d.Sub(secs).Mul(nanosPerSecond).Round(0)
	return time.Unix(secs.IntPart(), nanos.IntPart()).UTC(), nil
}

// EncodeLogFields builds the string-only field map appended to the durable
// log for one trade.
func EncodeLogFields(e TradeEvent) map[string]any {
	return map[string]any{
		"exchange": e.Exchange,
		"symbol":   e.Symbol.Dash(),
		"ts":       FormatUnix(e.EventTime),
		"recv_ts":  FormatUnix(e.ReceiptTime),
		"price":    e.Price.String(),
		"amount":   e.Amount.String(),
		"side":     e.Side.String(),
	}
}

// DecodeLogFields turns a durable log record into a row. exchange, symbol, ts,
// price and amount are required; recv_ts and side are optional.
func DecodeLogFields(fields map[string]string) (PersistedTrade, error) {
	exchange := strings.TrimSpace(fields["exchange"])
	symbol := strings.TrimSpace(fields["symbol"])
	if exchange == "" || symbol == "" {
		return PersistedTrade{}, fmt.Errorf("%w: missing exchange or symbol", ErrMalformedEntry)
	}

	ts, err := ParseUnix(fields["ts"])
	if err != nil {
		return PersistedTrade{}, fmt.Errorf("%w: ts %q: %v", ErrMalformedEntry, fields["ts"], err)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(fields["price"]))
	if err != nil {
		return PersistedTrade{}, fmt.Errorf("%w: price %q: %v", ErrMalformedEntry, fields["price"], err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(fields["amount"]))
	if err != nil {
		return PersistedTrade{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedEntry, fields["amount"], err)
	}

	row := PersistedTrade{
		Exchange:  exchange,
		Symbol:    symbol,
		EventTime: ts,
		Price:     price,
		Amount:    amount,
	}

	if raw, ok := fields["recv_ts"]; ok && strings.TrimSpace(raw) != "" {
		recv, err := ParseUnix(raw)
		if err != nil {
			return PersistedTrade{}, fmt.Errorf("%w: recv_ts %q: %v", ErrMalformedEntry, raw, err)
		}
		row.ReceiptTime = &recv
	}
	if side := strings.ToLower(strings.TrimSpace(fields["side"])); side != "" {
		row.Side = &side
	}

	return row, nil
}
