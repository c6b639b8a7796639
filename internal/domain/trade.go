package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade fill.
type Side string

// Trade side constants
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the recognized values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// CanonicalTrade is the exchange-agnostic representation of a single fill.
// It is produced by a vendor mapper, consumed exactly once by the position
// matcher, and then discarded; only its ExecutionID survives inside
// ClosedPosition.TradeIDs.
type CanonicalTrade struct {
	ExecutionID     string          // unique per exchange
	OrderID         string          // parent order, informational
	Symbol          string          // instrument, e.g. "BTCUSDT"
	Side            Side            // "buy" | "sell"
	Quantity        decimal.Decimal // > 0
	Price           decimal.Decimal // > 0
	Fee             decimal.Decimal // currency-denominated, zero if the exchange omits it
	ExecutionTimeMs int64           // epoch milliseconds, the ordering key
	SourceTime      int64           // execution time as the vendor reported it, in the vendor's native unit; pagination cursors advance on this value
	TimeInferred    bool            // true when the exchange omitted the execution time
	RawPayload      json.RawMessage // vendor-native record, passed through for downstream flags
}
