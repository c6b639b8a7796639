package domain

import "github.com/shopspring/decimal"

// BookSide identifies one of the two independent inventories kept per symbol
// under hedge mode.
type BookSide string

// Book side constants
const (
	BookLong  BookSide = "LONG"
	BookShort BookSide = "SHORT"
)

// OpenLot is the remaining unmatched inventory of one (symbol, book) pair at
// the end of a matching pass. Lots live only for the duration of a pass and
// are never persisted.
type OpenLot struct {
	Symbol            string
	Book              BookSide
	RemainingQuantity decimal.Decimal // always >= 0
	WeightedAvgCost   decimal.Decimal // running volume-weighted entry price
	EntryFees         decimal.Decimal // accumulated fees of unmatched entries
	OpenTimestampMs   int64           // time of the oldest entry since the lot was last empty
	FundingCarried    decimal.Decimal // net funding not attributable to any closure
}

// ClosedPosition is one closed chunk of inventory, emitted by the matcher the
// moment a buy offsets SHORT inventory or a sell offsets LONG inventory.
// Immutable once emitted, except for the funding attribution step which sets
// FundingAdjustment and FinalRealizedPnl.
type ClosedPosition struct {
	PositionID       string // deterministic hash, see idhash
	AccountID        string // set by the aggregation facade
	Symbol           string
	Book             BookSide
	MatchedQuantity  decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	AvgExitPrice     decimal.Decimal
	EntryValue       decimal.Decimal // AvgEntryPrice * MatchedQuantity
	ExitValue        decimal.Decimal // AvgExitPrice * MatchedQuantity
	RealizedPnl      decimal.Decimal // net of fees, before funding
	FundingAdjustment *decimal.Decimal // nil until funding is attributed
	FinalRealizedPnl decimal.Decimal
	OpenTimestampMs  int64
	CloseTimestampMs int64
	TradeIDs         []string // contributing execution IDs, entry first, in time order
}
