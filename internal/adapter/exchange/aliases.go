package exchange

import (
	"strings"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

const (
	NameBinance  = "binance"
	NameKraken   = "kraken"
	NameCoinbase = "coinbase"
)

// StorageSymbol applies an exchange's quote-asset substitution. Trades are
// persisted under the substituted symbol, so range queries must go through
// the same function.
func StorageSymbol(exchange string, s model.Symbol) model.Symbol {
	switch strings.ToLower(strings.TrimSpace(exchange)) {
	case NameBinance:
		if s.Quote == "USD" {
			s.Quote = "USDT"
		}
	case NameKraken:
		if s.Quote == "USDT" {
			s.Quote = "USD"
		}
	}
	return s
}

var krakenBaseAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

var krakenBaseAliasesRev = func() map[string]string {
	rev := make(map[string]string, len(krakenBaseAliases))
	for k, v := range krakenBaseAliases {
		rev[v] = k
	}
	return rev
}()

// krakenPair returns the wire pair ("XBT/USD") and the canonical symbol
// trades on that pair are published under.
func krakenPair(s model.Symbol) (string, model.Symbol) {
	stored := StorageSymbol(NameKraken, s)
	base := stored.Base
	if alias, ok := krakenBaseAliases[base]; ok {
		base = alias
	}
	return base + "/" + stored.Quote, stored
}

// binanceMarket returns the lowercase market id ("btcusdt") and the
// canonical symbol trades on it are published under.
func binanceMarket(s model.Symbol) (string, model.Symbol) {
	stored := StorageSymbol(NameBinance, s)
	return strings.ToLower(stored.Base + stored.Quote), stored
}
