package model

import (
	"fmt"
	"strings"
)

// Symbol is an exchange-agnostic trading pair. Both parts are non-empty and
// uppercase; values are only produced by ParseSymbol.
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Dash() string {
	return s.Base + "-" + s.Quote
}

func (s Symbol) Slash() string {
	return s.Base + "/" + s.Quote
}

func (s Symbol) String() string {
	return s.Dash()
}

func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}

// ParseSymbol accepts BASE-QUOTE or BASE/QUOTE in any case and returns the
// canonical form. Parsing an already canonical symbol returns it unchanged.
func ParseSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	var base, quote string
	var found bool
	if base, quote, found = strings.Cut(s, "/"); !found {
		base, quote, found = strings.Cut(s, "-")
	}
	if !found {
		return Symbol{}, fmt.Errorf("%w: %q (expected BASE-QUOTE or BASE/QUOTE)", ErrInvalidSymbolFormat, raw)
	}

	base = strings.TrimSpace(base)
	quote = strings.TrimSpace(quote)
	if base == "" || quote == "" {
		return Symbol{}, fmt.Errorf("%w: %q (empty base/quote)", ErrInvalidSymbolFormat, raw)
	}

	return Symbol{Base: base, Quote: quote}, nil
}

// ParseSymbolList parses a comma separated list such as "BTC-USD, eth/usd".
// Empty items are skipped.
func ParseSymbolList(raw string) ([]Symbol, error) {
	var out []Symbol
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sym, err := ParseSymbol(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}
