package port

import "github.com/metacoder87/investment-matrix/internal/domain/model"

// SymbolMapper maps a canonical symbol to the form an exchange's trades are
// stored under.
type SymbolMapper func(exchange string, sym model.Symbol) model.Symbol

func IdentitySymbols(_ string, sym model.Symbol) model.Symbol { return sym }
