package ingestion

import (
	"errors"
	"sort"

	"exchange-ledger/internal/domain"
)

// ErrInvalidOrdering is returned when trades are not in deterministic order.
var ErrInvalidOrdering = errors.New("trades are not in deterministic order")

// SortTrades orders trades by (execution time ASC, execution ID ASC).
// Ties on the timestamp are broken by execution ID for determinism.
func SortTrades(trades []*domain.CanonicalTrade) {
	sort.Slice(trades, func(i, j int) bool {
		return compareTrades(trades[i], trades[j]) < 0
	})
}

// ValidateTradeOrdering checks that trades are strictly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateTradeOrdering(trades []*domain.CanonicalTrade) error {
	for i := 1; i < len(trades); i++ {
		if compareTrades(trades[i-1], trades[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareTrades returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (execution time ASC, execution ID ASC)
func compareTrades(a, b *domain.CanonicalTrade) int {
	if a.ExecutionTimeMs != b.ExecutionTimeMs {
		if a.ExecutionTimeMs < b.ExecutionTimeMs {
			return -1
		}
		return 1
	}
	if a.ExecutionID != b.ExecutionID {
		if a.ExecutionID < b.ExecutionID {
			return -1
		}
		return 1
	}
	return 0
}
