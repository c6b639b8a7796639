package ingestion

import (
	"errors"
	"testing"

	"exchange-ledger/internal/domain"
)

func orderedTrade(id string, ts int64) *domain.CanonicalTrade {
	return &domain.CanonicalTrade{ExecutionID: id, ExecutionTimeMs: ts}
}

func TestSortTrades_ByTimeThenID(t *testing.T) {
	trades := []*domain.CanonicalTrade{
		orderedTrade("b", 2000),
		orderedTrade("c", 1000),
		orderedTrade("a", 2000),
	}

	SortTrades(trades)

	want := []string{"c", "a", "b"}
	for i, id := range want {
		if trades[i].ExecutionID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, trades[i].ExecutionID)
		}
	}
}

func TestValidateTradeOrdering_Valid(t *testing.T) {
	trades := []*domain.CanonicalTrade{
		orderedTrade("a", 1000),
		orderedTrade("b", 1000),
		orderedTrade("a", 2000),
	}
	if err := ValidateTradeOrdering(trades); err != nil {
		t.Errorf("expected valid ordering, got %v", err)
	}
}

func TestValidateTradeOrdering_OutOfOrder(t *testing.T) {
	trades := []*domain.CanonicalTrade{
		orderedTrade("a", 2000),
		orderedTrade("a", 1000),
	}
	if !errors.Is(ValidateTradeOrdering(trades), ErrInvalidOrdering) {
		t.Error("expected ErrInvalidOrdering for descending timestamps")
	}
}

func TestValidateTradeOrdering_Duplicate(t *testing.T) {
	trades := []*domain.CanonicalTrade{
		orderedTrade("a", 1000),
		orderedTrade("a", 1000),
	}
	if !errors.Is(ValidateTradeOrdering(trades), ErrInvalidOrdering) {
		t.Error("expected ErrInvalidOrdering for exact duplicates")
	}
}
