package matching

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/ingestion"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func trade(id string, side domain.Side, symbol, qty, price, fee string, ts int64) *domain.CanonicalTrade {
	return &domain.CanonicalTrade{
		ExecutionID:     id,
		OrderID:         "o-" + id,
		Symbol:          symbol,
		Side:            side,
		Quantity:        d(qty),
		Price:           d(price),
		Fee:             d(fee),
		ExecutionTimeMs: ts,
	}
}

func TestMatch_BuyThenSell_ClosesLong(t *testing.T) {
	// Buy 1 @ 100, sell 1 @ 110, zero fees → one LONG closure with pnl 10.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	cp := result.Closed[0]
	if cp.Book != domain.BookLong {
		t.Errorf("expected LONG book, got %s", cp.Book)
	}
	if !cp.RealizedPnl.Equal(d("10")) {
		t.Errorf("expected pnl 10, got %s", cp.RealizedPnl)
	}
	if !cp.FinalRealizedPnl.Equal(cp.RealizedPnl) {
		t.Errorf("final pnl should equal realized pnl before funding, got %s", cp.FinalRealizedPnl)
	}
	if !cp.EntryValue.Equal(d("100")) || !cp.ExitValue.Equal(d("110")) {
		t.Errorf("expected entry 100 exit 110, got %s %s", cp.EntryValue, cp.ExitValue)
	}
	if cp.OpenTimestampMs != 1000 || cp.CloseTimestampMs != 2000 {
		t.Errorf("expected open 1000 close 2000, got %d %d", cp.OpenTimestampMs, cp.CloseTimestampMs)
	}
	if len(result.Open) != 0 {
		t.Errorf("expected no open lots, got %d", len(result.Open))
	}
}

func TestMatch_SellThenBuy_ClosesShort(t *testing.T) {
	// Hedge mode mirror: sell 1 @ 100 opens SHORT, buy 1 @ 90 closes it
	// with pnl (100-90)*1 = 10.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideSell, "ETHUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideBuy, "ETHUSDT", "1", "90", "0", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	cp := result.Closed[0]
	if cp.Book != domain.BookShort {
		t.Errorf("expected SHORT book, got %s", cp.Book)
	}
	if !cp.RealizedPnl.Equal(d("10")) {
		t.Errorf("expected pnl 10, got %s", cp.RealizedPnl)
	}
}

func TestMatch_FeesReduceRealizedPnl(t *testing.T) {
	// Entry fee 0.1 and exit fee 0.2 both come out of the gross 10.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0.1", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0.2", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Closed[0].RealizedPnl.Equal(d("9.7")) {
		t.Errorf("expected pnl 9.7, got %s", result.Closed[0].RealizedPnl)
	}
}

func TestMatch_WeightedAverageEntry(t *testing.T) {
	// Buy 1 @ 100 and 1 @ 120 → avg 110. Selling 2 @ 115 realizes
	// (115-110)*2 = 10.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideBuy, "BTCUSDT", "1", "120", "0", 2000),
		trade("e3", domain.SideSell, "BTCUSDT", "2", "115", "0", 3000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	cp := result.Closed[0]
	if !cp.AvgEntryPrice.Equal(d("110")) {
		t.Errorf("expected avg entry 110, got %s", cp.AvgEntryPrice)
	}
	if !cp.RealizedPnl.Equal(d("10")) {
		t.Errorf("expected pnl 10, got %s", cp.RealizedPnl)
	}
	if len(cp.TradeIDs) != 3 {
		t.Errorf("expected 3 contributing trade IDs, got %v", cp.TradeIDs)
	}
}

func TestMatch_PartialClose_LeavesOpenRemainder(t *testing.T) {
	// Buy 2 @ 100, sell 1 @ 110 → one closure of qty 1 plus an open LONG
	// lot of qty 1 at the original average.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "2", "100", "0", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	if !result.Closed[0].MatchedQuantity.Equal(d("1")) {
		t.Errorf("expected matched qty 1, got %s", result.Closed[0].MatchedQuantity)
	}

	if len(result.Open) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(result.Open))
	}
	lot := result.Open[0]
	if !lot.RemainingQuantity.Equal(d("1")) || !lot.WeightedAvgCost.Equal(d("100")) {
		t.Errorf("expected open 1 @ 100, got %s @ %s", lot.RemainingQuantity, lot.WeightedAvgCost)
	}
	if lot.Book != domain.BookLong {
		t.Errorf("expected LONG lot, got %s", lot.Book)
	}
}

func TestMatch_CrossingTrade_ClosesShortThenOpensLong(t *testing.T) {
	// SHORT 1 open, then buy 3: 1 closes the short, the leftover 2 opens
	// LONG. Entry fee on the buy is split pro-rata, 1/3 to the closure.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideSell, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideBuy, "BTCUSDT", "3", "90", "0.3", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	cp := result.Closed[0]
	if cp.Book != domain.BookShort {
		t.Errorf("expected SHORT closure, got %s", cp.Book)
	}
	// gross (100-90)*1 = 10, exit fee 0.3*(1/3) = 0.1
	if !cp.RealizedPnl.Equal(d("9.9")) {
		t.Errorf("expected pnl 9.9, got %s", cp.RealizedPnl)
	}

	if len(result.Open) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(result.Open))
	}
	lot := result.Open[0]
	if lot.Book != domain.BookLong {
		t.Errorf("expected leftover LONG lot, got %s", lot.Book)
	}
	if !lot.RemainingQuantity.Equal(d("2")) || !lot.WeightedAvgCost.Equal(d("90")) {
		t.Errorf("expected open 2 @ 90, got %s @ %s", lot.RemainingQuantity, lot.WeightedAvgCost)
	}
	if !lot.EntryFees.Equal(d("0.2")) {
		t.Errorf("expected carried entry fees 0.2, got %s", lot.EntryFees)
	}
}

func TestMatch_ExactClose_ResetsBook(t *testing.T) {
	// Emptying a book exactly resets its average: a later buy at a new
	// price must not blend with stale state.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0", 2000),
		trade("e3", domain.SideBuy, "BTCUSDT", "1", "200", "0", 3000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Open) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(result.Open))
	}
	if !result.Open[0].WeightedAvgCost.Equal(d("200")) {
		t.Errorf("expected fresh avg 200, got %s", result.Open[0].WeightedAvgCost)
	}
	if result.Open[0].OpenTimestampMs != 3000 {
		t.Errorf("expected fresh open ts 3000, got %d", result.Open[0].OpenTimestampMs)
	}
}

func TestMatch_HedgeMode_BooksAreIndependent(t *testing.T) {
	// Opening LONG then selling more than the LONG quantity closes the
	// LONG and opens a SHORT; both books never net against each other.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "2", "110", "0", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(result.Closed))
	}
	if result.Closed[0].Book != domain.BookLong {
		t.Errorf("expected LONG closure, got %s", result.Closed[0].Book)
	}
	if len(result.Open) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(result.Open))
	}
	if result.Open[0].Book != domain.BookShort {
		t.Errorf("expected SHORT remainder, got %s", result.Open[0].Book)
	}
	if !result.Open[0].RemainingQuantity.Equal(d("1")) {
		t.Errorf("expected SHORT qty 1, got %s", result.Open[0].RemainingQuantity)
	}
}

func TestMatch_SymbolsAreIsolated(t *testing.T) {
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e2", domain.SideSell, "ETHUSDT", "1", "50", "0", 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Closed) != 0 {
		t.Errorf("expected no closures across symbols, got %d", len(result.Closed))
	}
	if len(result.Open) != 2 {
		t.Errorf("expected 2 open lots, got %d", len(result.Open))
	}
}

func TestMatch_UnorderedInput_IsSortedBeforeMatching(t *testing.T) {
	// Same trades as the LONG scenario, delivered out of order.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0", 2000),
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Closed) != 1 || !result.Closed[0].RealizedPnl.Equal(d("10")) {
		t.Fatalf("expected the buy to be matched first, got %+v", result.Closed)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	trades := []*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "2", "100", "0.1", 1000),
		trade("e2", domain.SideSell, "BTCUSDT", "1", "110", "0.05", 2000),
		trade("e3", domain.SideSell, "ETHUSDT", "1", "50", "0", 3000),
		trade("e4", domain.SideBuy, "ETHUSDT", "1", "45", "0.01", 4000),
	}

	first, err := NewSession("acct-1").Match(trades)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewSession("acct-1").Match(trades)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first.Closed) != len(second.Closed) {
		t.Fatalf("closure counts differ: %d vs %d", len(first.Closed), len(second.Closed))
	}
	for i := range first.Closed {
		if first.Closed[i].PositionID != second.Closed[i].PositionID {
			t.Errorf("position IDs differ at %d: %s vs %s",
				i, first.Closed[i].PositionID, second.Closed[i].PositionID)
		}
		if !first.Closed[i].RealizedPnl.Equal(second.Closed[i].RealizedPnl) {
			t.Errorf("pnl differs at %d: %s vs %s",
				i, first.Closed[i].RealizedPnl, second.Closed[i].RealizedPnl)
		}
	}
}

func TestMatch_DecimalPrecision_NoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 style quantities must stay exact under decimal arithmetic.
	session := NewSession("acct-1")
	result, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "0.1", "100", "0", 1000),
		trade("e2", domain.SideBuy, "BTCUSDT", "0.2", "100", "0", 2000),
		trade("e3", domain.SideSell, "BTCUSDT", "0.3", "130", "0", 3000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Open) != 0 {
		t.Fatalf("expected fully closed inventory, got %d open lots", len(result.Open))
	}
	if !result.Closed[0].RealizedPnl.Equal(d("9")) {
		t.Errorf("expected pnl exactly 9, got %s", result.Closed[0].RealizedPnl)
	}
}

func TestMatch_DuplicateExecutions_Rejected(t *testing.T) {
	// The same execution appearing twice would double count inventory, so
	// the post-sort ordering check fails the whole pass.
	session := NewSession("acct-1")
	_, err := session.Match([]*domain.CanonicalTrade{
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
		trade("e1", domain.SideBuy, "BTCUSDT", "1", "100", "0", 1000),
	})
	if !errors.Is(err, ingestion.ErrInvalidOrdering) {
		t.Fatalf("expected duplicate executions rejected, got %v", err)
	}
}
