package exchange

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

var (
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

// Strategy holds everything exchange specific about a trade stream. The
// reconnect loop in Streamer is shared by all strategies.
type Strategy interface {
	Name() string
	URL() string
	SubscriptionMessage() ([]byte, error)
	// ParseMessage converts one inbound frame into trades. Frames that are
	// not trade prints return no trades and no error; undecodable frames
	// return an error wrapping ErrMalformedFrame. A batch frame with some
	// bad entries returns the good trades together with that error.
	ParseMessage(raw []byte, receivedAt time.Time) ([]model.TradeEvent, error)
}

type Options struct {
	// BinanceTLD selects stream.binance.<tld>; "us" for US customers.
	BinanceTLD string
}

// New builds the strategy registered under name.
func New(name string, symbols []model.Symbol, opts Options) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameBinance:
		return NewBinance(symbols, opts.BinanceTLD), nil
	case NameKraken:
		return NewKraken(symbols), nil
	case NameCoinbase:
		return NewCoinbase(symbols), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s, %s, %s)", ErrUnsupportedExchange, name, NameCoinbase, NameBinance, NameKraken)
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}
