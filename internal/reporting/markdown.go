package reporting

import (
	"fmt"
	"strings"
	"time"

	"exchange-ledger/internal/domain"
)

// RenderMarkdown renders the per-account bundles as a Markdown summary.
func RenderMarkdown(bundles []domain.AccountBundle, generatedAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Realized PnL Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Accounts: %d\n\n", len(bundles)))

	for _, b := range bundles {
		sb.WriteString(fmt.Sprintf("## Account %s\n\n", b.AccountID))

		if b.Error != "" {
			sb.WriteString(fmt.Sprintf("**FAILED:** %s\n\n", b.Error))
			continue
		}
		if b.Partial {
			sb.WriteString("**Partial ingestion:** fill history was truncated, totals below are a lower bound.\n\n")
		}

		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Closed Positions | %d |\n", len(b.ClosedPositions)))
		sb.WriteString(fmt.Sprintf("| Open Positions | %d |\n", len(b.OpenPositions)))
		sb.WriteString(fmt.Sprintf("| Realized PnL | %s |\n", totalRealized(b.ClosedPositions)))
		sb.WriteString(fmt.Sprintf("| Reconciliation Deltas | %d |\n", len(b.Reconciliation)))
		sb.WriteString("\n")

		if len(b.Reconciliation) > 0 {
			sb.WriteString("### Discrepancies\n\n")
			sb.WriteString("| Symbol | Book | Computed | Reported | Discrepancy |\n")
			sb.WriteString("|--------|------|----------|----------|-------------|\n")
			for _, d := range b.Reconciliation {
				sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
					d.Symbol, d.Book, d.Computed.String(), d.Reported.String(), d.Discrepancy.String()))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func totalRealized(closed []*domain.ClosedPosition) string {
	if len(closed) == 0 {
		return "0"
	}
	total := closed[0].FinalRealizedPnl
	for _, p := range closed[1:] {
		total = total.Add(p.FinalRealizedPnl)
	}
	return total.String()
}
