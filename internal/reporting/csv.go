// Package reporting renders aggregation results as CSV and Markdown.
package reporting

import (
	"fmt"
	"strings"

	"exchange-ledger/internal/domain"
)

// RenderClosedPositionsCSV renders closed positions as a CSV string. Decimal
// columns keep their exact string form, nothing is rounded at the boundary.
func RenderClosedPositionsCSV(positions []*domain.ClosedPosition) string {
	var sb strings.Builder

	// Header
	sb.WriteString("position_id,account_id,symbol,book,matched_quantity,avg_entry_price,avg_exit_price,")
	sb.WriteString("entry_value,exit_value,realized_pnl,funding_adjustment,final_realized_pnl,")
	sb.WriteString("open_timestamp_ms,close_timestamp_ms,trade_ids\n")

	// Rows
	for _, p := range positions {
		funding := ""
		if p.FundingAdjustment != nil {
			funding = p.FundingAdjustment.String()
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%s\n",
			p.PositionID,
			p.AccountID,
			p.Symbol,
			p.Book,
			p.MatchedQuantity.String(),
			p.AvgEntryPrice.String(),
			p.AvgExitPrice.String(),
			p.EntryValue.String(),
			p.ExitValue.String(),
			p.RealizedPnl.String(),
			funding,
			p.FinalRealizedPnl.String(),
			p.OpenTimestampMs,
			p.CloseTimestampMs,
			strings.Join(p.TradeIDs, ";"),
		))
	}

	return sb.String()
}

// RenderReconciliationCSV renders open position discrepancies as a CSV string.
func RenderReconciliationCSV(deltas []domain.ReconciliationDelta) string {
	var sb strings.Builder

	sb.WriteString("symbol,book,computed_quantity,reported_quantity,discrepancy\n")

	for _, d := range deltas {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s\n",
			d.Symbol,
			d.Book,
			d.Computed.String(),
			d.Reported.String(),
			d.Discrepancy.String(),
		))
	}

	return sb.String()
}
