// Package matching turns an ordered canonical trade sequence into closed
// positions via weighted-average inventory matching. Long and short exposure
// on the same instrument are tracked as two independent books (hedge mode):
// a buy first closes open SHORT inventory before opening or extending LONG,
// and a sell is the exact mirror.
//
// Matching is pure, synchronous, CPU-bound computation: deterministic given
// the same ordered input, no suspension points, O(trades).
package matching

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/idhash"
	"exchange-ledger/internal/ingestion"
)

// InventoryInvariantViolation indicates a matching-logic bug: inventory went
// negative or a closure exceeded available inventory. It is fatal for the
// account being processed and carries full lot state for postmortem.
type InventoryInvariantViolation struct {
	Symbol    string
	Book      domain.BookSide
	Remaining decimal.Decimal
	Requested decimal.Decimal
	TradeID   string
}

func (e *InventoryInvariantViolation) Error() string {
	return fmt.Sprintf(
		"inventory invariant violated: %s %s book has %s remaining, trade %s requested %s",
		e.Symbol, e.Book, e.Remaining, e.TradeID, e.Requested,
	)
}

// Result is the outcome of one matching pass over a single account's trades.
type Result struct {
	Closed []*domain.ClosedPosition
	Open   []domain.OpenLot
}

// Session owns the inventory books for one matching pass. Books are keyed by
// (symbol, bookSide) so the invariant checks stay localized per pair.
type Session struct {
	accountID string
	books     map[bookKey]*book
}

// NewSession creates a matching session for one account.
func NewSession(accountID string) *Session {
	return &Session{
		accountID: accountID,
		books:     make(map[bookKey]*book),
	}
}

// Match consumes the full trade sequence and returns closed positions plus
// the remaining open inventory. Results depend on ascending
// (execution time, execution ID) order, so Match re-sorts its input copy
// before applying trades. A sequence that is not strictly ordered after the
// sort carries duplicate executions, which would double count inventory, so
// Match rejects it.
func (s *Session) Match(trades []*domain.CanonicalTrade) (*Result, error) {
	ordered := make([]*domain.CanonicalTrade, len(trades))
	copy(ordered, trades)
	ingestion.SortTrades(ordered)
	if err := ingestion.ValidateTradeOrdering(ordered); err != nil {
		return nil, fmt.Errorf("trade sequence has duplicate executions: %w", err)
	}

	result := &Result{}

	for _, trade := range ordered {
		closed, err := s.apply(trade)
		if err != nil {
			return nil, err
		}
		if closed != nil {
			result.Closed = append(result.Closed, closed)
		}
	}

	result.Open = s.openLots()
	return result, nil
}

// apply processes one trade: close the opposing book first, then open or
// extend the aligned book with any leftover quantity. A trade that does both
// yields one close record and one lot update, never double counted.
func (s *Session) apply(trade *domain.CanonicalTrade) (*domain.ClosedPosition, error) {
	var closeSide, openSide domain.BookSide
	if trade.Side == domain.SideBuy {
		closeSide, openSide = domain.BookShort, domain.BookLong
	} else {
		closeSide, openSide = domain.BookLong, domain.BookShort
	}

	closing := s.book(trade.Symbol, closeSide)
	opening := s.book(trade.Symbol, openSide)

	if closing.qty.IsNegative() || opening.qty.IsNegative() {
		return nil, &InventoryInvariantViolation{
			Symbol:    trade.Symbol,
			Book:      closeSide,
			Remaining: closing.qty,
			Requested: trade.Quantity,
			TradeID:   trade.ExecutionID,
		}
	}

	remaining := trade.Quantity
	var closed *domain.ClosedPosition

	if closing.qty.IsPositive() {
		closedQty := decimal.Min(remaining, closing.qty)
		if closedQty.GreaterThan(closing.qty) {
			return nil, &InventoryInvariantViolation{
				Symbol:    trade.Symbol,
				Book:      closeSide,
				Remaining: closing.qty,
				Requested: closedQty,
				TradeID:   trade.ExecutionID,
			}
		}
		closed = s.close(closing, trade, closedQty)
		remaining = remaining.Sub(closedQty)
	}

	if remaining.IsPositive() {
		feeShare := trade.Fee
		if !remaining.Equal(trade.Quantity) {
			feeShare = trade.Fee.Mul(remaining).Div(trade.Quantity)
		}
		opening.add(remaining, trade.Price, feeShare, trade.ExecutionID, trade.ExecutionTimeMs)
	}

	return closed, nil
}

// close reduces the book by closedQty against its weighted-average cost and
// emits the ClosedPosition record. Realized P&L nets out the closing trade's
// proportional fee and the pro-rata share of accumulated entry fees.
func (s *Session) close(b *book, trade *domain.CanonicalTrade, closedQty decimal.Decimal) *domain.ClosedPosition {
	avgEntry := b.avgCost
	openTs := b.openTs
	tradeIDs := make([]string, len(b.tradeIDs), len(b.tradeIDs)+1)
	copy(tradeIDs, b.tradeIDs)
	tradeIDs = append(tradeIDs, trade.ExecutionID)

	exitFee := trade.Fee
	if !closedQty.Equal(trade.Quantity) {
		exitFee = trade.Fee.Mul(closedQty).Div(trade.Quantity)
	}
	entryFee := b.reduce(closedQty)

	var gross decimal.Decimal
	if b.side == domain.BookLong {
		gross = trade.Price.Sub(avgEntry).Mul(closedQty)
	} else {
		gross = avgEntry.Sub(trade.Price).Mul(closedQty)
	}
	pnl := gross.Sub(entryFee).Sub(exitFee)

	return &domain.ClosedPosition{
		PositionID: idhash.ComputePositionID(
			s.accountID, trade.Symbol, string(b.side), trade.ExecutionID, trade.ExecutionTimeMs,
		),
		AccountID:        s.accountID,
		Symbol:           trade.Symbol,
		Book:             b.side,
		MatchedQuantity:  closedQty,
		AvgEntryPrice:    avgEntry,
		AvgExitPrice:     trade.Price,
		EntryValue:       avgEntry.Mul(closedQty),
		ExitValue:        trade.Price.Mul(closedQty),
		RealizedPnl:      pnl,
		FinalRealizedPnl: pnl,
		OpenTimestampMs:  openTs,
		CloseTimestampMs: trade.ExecutionTimeMs,
		TradeIDs:         tradeIDs,
	}
}

// book returns the inventory book for (symbol, side), creating it on first use.
func (s *Session) book(symbol string, side domain.BookSide) *book {
	key := bookKey{symbol: symbol, side: side}
	b, ok := s.books[key]
	if !ok {
		b = &book{symbol: symbol, side: side, qty: decimal.Zero, avgCost: decimal.Zero, fees: decimal.Zero}
		s.books[key] = b
	}
	return b
}

// openLots snapshots all books with remaining quantity, ordered by
// (symbol, book) for determinism.
func (s *Session) openLots() []domain.OpenLot {
	var lots []domain.OpenLot
	for _, b := range s.books {
		if b.qty.IsPositive() {
			lots = append(lots, b.snapshot())
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].Symbol != lots[j].Symbol {
			return lots[i].Symbol < lots[j].Symbol
		}
		return lots[i].Book < lots[j].Book
	})
	return lots
}
