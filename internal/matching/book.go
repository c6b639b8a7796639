package matching

import (
	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

// bookKey identifies one of the two independent inventories kept per symbol.
type bookKey struct {
	symbol string
	side   domain.BookSide
}

// book is the mutable inventory of one (symbol, bookSide) pair. It is owned
// exclusively by the matching session for a single pass and never escapes it;
// the durable view is the OpenLot snapshot taken at the end of the pass.
type book struct {
	symbol string
	side   domain.BookSide

	qty      decimal.Decimal // remaining unmatched quantity, never negative
	avgCost  decimal.Decimal // running volume-weighted entry price
	fees     decimal.Decimal // accumulated entry fees of unmatched quantity
	openTs   int64           // time of the oldest entry since the book was last empty
	tradeIDs []string        // contributing entry execution IDs, in time order
}

// add extends the book with qty units at price, updating the weighted-average
// cost: newAvg = (oldAvg*oldQty + qty*price) / (oldQty + qty).
func (b *book) add(qty, price, feeShare decimal.Decimal, executionID string, tsMs int64) {
	if b.qty.IsZero() {
		b.avgCost = price
		b.fees = feeShare
		b.openTs = tsMs
		b.tradeIDs = []string{executionID}
		b.qty = qty
		return
	}

	total := b.qty.Add(qty)
	b.avgCost = b.avgCost.Mul(b.qty).Add(price.Mul(qty)).Div(total)
	b.qty = total
	b.fees = b.fees.Add(feeShare)
	b.tradeIDs = append(b.tradeIDs, executionID)
}

// reduce removes qty units from the book and returns the entry-fee share
// attributable to them. A reduction to exactly zero resets the running
// weighted average.
func (b *book) reduce(qty decimal.Decimal) decimal.Decimal {
	feeShare := decimal.Zero
	if b.qty.IsPositive() {
		feeShare = b.fees.Mul(qty).Div(b.qty)
	}

	b.qty = b.qty.Sub(qty)
	b.fees = b.fees.Sub(feeShare)

	if b.qty.IsZero() {
		b.avgCost = decimal.Zero
		b.fees = decimal.Zero
		b.openTs = 0
		b.tradeIDs = nil
	}
	return feeShare
}

// snapshot converts the book into its durable OpenLot view.
func (b *book) snapshot() domain.OpenLot {
	return domain.OpenLot{
		Symbol:            b.symbol,
		Book:              b.side,
		RemainingQuantity: b.qty,
		WeightedAvgCost:   b.avgCost,
		EntryFees:         b.fees,
		OpenTimestampMs:   b.openTs,
		FundingCarried:    decimal.Zero,
	}
}
