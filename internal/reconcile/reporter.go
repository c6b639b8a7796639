// Package reconcile compares internally computed open inventory against the
// exchange's own reported positions. Output is purely informational: it never
// mutates computed state and never blocks downstream use of the ledger.
package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

type pairKey struct {
	symbol string
	book   domain.BookSide
}

// Reconcile joins computed open lots with exchange-reported positions on
// (symbol, book). A pair missing on one side is reported with that side's
// quantity treated as zero. Matching pairs with zero discrepancy are omitted.
func Reconcile(computed []domain.OpenLot, reported []domain.ExchangePosition) []domain.ReconciliationDelta {
	computedQty := make(map[pairKey]decimal.Decimal, len(computed))
	for _, lot := range computed {
		key := pairKey{symbol: lot.Symbol, book: lot.Book}
		computedQty[key] = computedQty[key].Add(lot.RemainingQuantity)
	}

	reportedQty := make(map[pairKey]decimal.Decimal, len(reported))
	for _, pos := range reported {
		key := pairKey{symbol: pos.Symbol, book: pos.Book}
		reportedQty[key] = reportedQty[key].Add(pos.Quantity)
	}

	keys := make(map[pairKey]struct{}, len(computedQty)+len(reportedQty))
	for key := range computedQty {
		keys[key] = struct{}{}
	}
	for key := range reportedQty {
		keys[key] = struct{}{}
	}

	var deltas []domain.ReconciliationDelta
	for key := range keys {
		c := computedQty[key]
		r := reportedQty[key]
		if c.Equal(r) {
			continue
		}
		deltas = append(deltas, domain.ReconciliationDelta{
			Symbol:      key.symbol,
			Book:        key.book,
			Computed:    c,
			Reported:    r,
			Discrepancy: c.Sub(r),
		})
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Symbol != deltas[j].Symbol {
			return deltas[i].Symbol < deltas[j].Symbol
		}
		return deltas[i].Book < deltas[j].Book
	})
	return deltas
}
