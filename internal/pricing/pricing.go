// Package pricing supplies mark prices for valuing still-open inventory.
package pricing

import "github.com/shopspring/decimal"

// PriceSource answers point-in-time mark-price lookups. Implementations must
// be safe for concurrent use; the aggregation facade shares one source across
// account pipelines (read-only).
type PriceSource interface {
	// MarkPrice returns the latest known mark price for a symbol and whether
	// one is known at all.
	MarkPrice(symbol string) (decimal.Decimal, bool)
}

// StaticPrices is a fixed PriceSource, used in tests and fixture replays.
type StaticPrices map[string]decimal.Decimal

// MarkPrice returns the configured price for a symbol.
func (p StaticPrices) MarkPrice(symbol string) (decimal.Decimal, bool) {
	price, ok := p[symbol]
	return price, ok
}
