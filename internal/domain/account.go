package domain

import "github.com/shopspring/decimal"

// Account identifies one exchange account tracked by the aggregator.
type Account struct {
	ID     string // stable user-assigned identifier
	Name   string // display name
	Vendor string // vendor key selecting the fill mapper, e.g. "binance-futures"
}

// Balance is a per-asset balance snapshot reported by the exchange,
// passed through untouched.
type Balance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
}

// OpenPositionView is the dashboard-facing view of remaining open inventory,
// derived from an OpenLot plus a mark price when one is available.
type OpenPositionView struct {
	Symbol          string
	Book            BookSide
	Quantity        decimal.Decimal
	AvgEntryPrice   decimal.Decimal
	MarkPrice       decimal.Decimal // zero when no price source had the symbol
	UnrealizedPnl   decimal.Decimal // zero when MarkPrice is unknown
	FundingCarried  decimal.Decimal
	OpenTimestampMs int64
}

// AccountBundle is the per-account result produced by the aggregation facade
// and consumed by the UI layer. One account's failure never prevents other
// bundles from being produced: failed pipelines yield a bundle populated with
// defaults and a non-empty Error.
type AccountBundle struct {
	AccountID       string
	Balances        []Balance
	OpenPositions   []OpenPositionView
	ClosedPositions []*ClosedPosition
	Reconciliation  []ReconciliationDelta
	LastUpdatedMs   int64
	Partial         bool   // ingestion stopped early (hard cap or persistent page failure)
	Error           string // empty on success
}
