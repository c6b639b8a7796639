package domain

import "github.com/shopspring/decimal"

// ExchangePosition is an open position as reported by the exchange itself.
// It is the authoritative side of a reconciliation check.
type ExchangePosition struct {
	Symbol     string
	Book       BookSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
}

// ReconciliationDelta records a discrepancy between internally computed open
// inventory and the exchange-reported position for one (symbol, book) pair.
// Diagnostic output only, never persisted.
type ReconciliationDelta struct {
	Symbol      string
	Book        BookSide
	Computed    decimal.Decimal // remaining quantity derived by the matcher
	Reported    decimal.Decimal // quantity reported by the exchange
	Discrepancy decimal.Decimal // Computed - Reported
}
