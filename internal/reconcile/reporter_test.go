package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lot(symbol string, book domain.BookSide, qty string) domain.OpenLot {
	return domain.OpenLot{Symbol: symbol, Book: book, RemainingQuantity: d(qty)}
}

func reported(symbol string, book domain.BookSide, qty string) domain.ExchangePosition {
	return domain.ExchangePosition{Symbol: symbol, Book: book, Quantity: d(qty)}
}

func TestReconcile_MatchingQuantities_NoDeltas(t *testing.T) {
	deltas := Reconcile(
		[]domain.OpenLot{lot("BTCUSDT", domain.BookLong, "1.5")},
		[]domain.ExchangePosition{reported("BTCUSDT", domain.BookLong, "1.5")},
	)
	if len(deltas) != 0 {
		t.Errorf("expected no deltas, got %v", deltas)
	}
}

func TestReconcile_QuantityMismatch(t *testing.T) {
	deltas := Reconcile(
		[]domain.OpenLot{lot("BTCUSDT", domain.BookLong, "2")},
		[]domain.ExchangePosition{reported("BTCUSDT", domain.BookLong, "1.5")},
	)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if !deltas[0].Discrepancy.Equal(d("0.5")) {
		t.Errorf("expected discrepancy 0.5, got %s", deltas[0].Discrepancy)
	}
}

func TestReconcile_MissingOnOneSide_TreatedAsZero(t *testing.T) {
	deltas := Reconcile(
		[]domain.OpenLot{lot("BTCUSDT", domain.BookLong, "1")},
		[]domain.ExchangePosition{reported("ETHUSDT", domain.BookShort, "3")},
	)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	// Sorted by symbol: BTCUSDT first.
	if !deltas[0].Reported.IsZero() || !deltas[0].Computed.Equal(d("1")) {
		t.Errorf("BTCUSDT: expected computed 1 reported 0, got %s %s",
			deltas[0].Computed, deltas[0].Reported)
	}
	if !deltas[1].Computed.IsZero() || !deltas[1].Reported.Equal(d("3")) {
		t.Errorf("ETHUSDT: expected computed 0 reported 3, got %s %s",
			deltas[1].Computed, deltas[1].Reported)
	}
	if !deltas[1].Discrepancy.Equal(d("-3")) {
		t.Errorf("expected computed-minus-reported -3, got %s", deltas[1].Discrepancy)
	}
}

func TestReconcile_BooksComparedIndependently(t *testing.T) {
	// A LONG lot never offsets a SHORT report on the same symbol.
	deltas := Reconcile(
		[]domain.OpenLot{lot("BTCUSDT", domain.BookLong, "1")},
		[]domain.ExchangePosition{reported("BTCUSDT", domain.BookShort, "1")},
	)
	if len(deltas) != 2 {
		t.Fatalf("expected deltas for both books, got %d", len(deltas))
	}
}

func TestReconcile_DeterministicOrder(t *testing.T) {
	deltas := Reconcile(
		[]domain.OpenLot{
			lot("ETHUSDT", domain.BookLong, "1"),
			lot("BTCUSDT", domain.BookShort, "1"),
			lot("BTCUSDT", domain.BookLong, "1"),
		},
		nil,
	)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
	if deltas[0].Symbol != "BTCUSDT" || deltas[0].Book != domain.BookLong {
		t.Errorf("expected BTCUSDT LONG first, got %s %s", deltas[0].Symbol, deltas[0].Book)
	}
	if deltas[2].Symbol != "ETHUSDT" {
		t.Errorf("expected ETHUSDT last, got %s", deltas[2].Symbol)
	}
}
