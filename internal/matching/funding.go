package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

// ApplyFunding distributes per-symbol net funding across that symbol's
// closed positions pro-rata by matched-quantity share, adding the share to
// FinalRealizedPnl. The last closure absorbs the division remainder so the
// attributed shares always sum to exactly the symbol's net funding.
//
// When a symbol has funding but no closures, the funding is carried forward
// on the still-open inventory pro-rata by remaining quantity; it is never
// fabricated into a closed record. Funding that cannot be attached to either
// closures or open inventory is returned to the caller for logging.
func ApplyFunding(result *Result, net map[string]decimal.Decimal) map[string]decimal.Decimal {
	unattributed := make(map[string]decimal.Decimal)

	symbols := make([]string, 0, len(net))
	for symbol := range net {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		total := net[symbol]
		if total.IsZero() {
			continue
		}

		if applyToClosures(result.Closed, symbol, total) {
			continue
		}
		if applyToOpenLots(result.Open, symbol, total) {
			continue
		}
		unattributed[symbol] = total
	}

	return unattributed
}

func applyToClosures(closed []*domain.ClosedPosition, symbol string, total decimal.Decimal) bool {
	var positions []*domain.ClosedPosition
	matched := decimal.Zero
	for _, cp := range closed {
		if cp.Symbol == symbol {
			positions = append(positions, cp)
			matched = matched.Add(cp.MatchedQuantity)
		}
	}
	if len(positions) == 0 || !matched.IsPositive() {
		return false
	}

	distributed := decimal.Zero
	for i, cp := range positions {
		share := total.Mul(cp.MatchedQuantity).Div(matched)
		if i == len(positions)-1 {
			share = total.Sub(distributed)
		}
		distributed = distributed.Add(share)

		adj := share
		cp.FundingAdjustment = &adj
		cp.FinalRealizedPnl = cp.RealizedPnl.Add(adj)
	}
	return true
}

func applyToOpenLots(open []domain.OpenLot, symbol string, total decimal.Decimal) bool {
	var idx []int
	remaining := decimal.Zero
	for i := range open {
		if open[i].Symbol == symbol {
			idx = append(idx, i)
			remaining = remaining.Add(open[i].RemainingQuantity)
		}
	}
	if len(idx) == 0 || !remaining.IsPositive() {
		return false
	}

	carried := decimal.Zero
	for n, i := range idx {
		share := total.Mul(open[i].RemainingQuantity).Div(remaining)
		if n == len(idx)-1 {
			share = total.Sub(carried)
		}
		carried = carried.Add(share)
		open[i].FundingCarried = open[i].FundingCarried.Add(share)
	}
	return true
}
