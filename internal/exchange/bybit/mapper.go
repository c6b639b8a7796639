// Package bybit maps Bybit v5 execution records to the neutral fill shape
// consumed by the normalizer.
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"

	"exchange-ledger/internal/normalize"
)

// Vendor is the registry key for this mapper.
const Vendor = "bybit"

// execution mirrors the /v5/execution/list record shape. Everything arrives
// as strings, including the millisecond timestamp.
type execution struct {
	Symbol    string `json:"symbol"`
	ExecID    string `json:"execId"`
	OrderID   string `json:"orderId"`
	Side      string `json:"side"` // "Buy" | "Sell"
	ExecPrice string `json:"execPrice"`
	ExecQty   string `json:"execQty"`
	ExecFee   string `json:"execFee"`
	ExecTime  string `json:"execTime"`
}

// Mapper implements normalize.Mapper for Bybit executions.
type Mapper struct{}

// NewMapper creates a Bybit execution mapper.
func NewMapper() *Mapper { return &Mapper{} }

var _ normalize.Mapper = (*Mapper)(nil)

// MapFill decodes one execution record.
func (m *Mapper) MapFill(raw json.RawMessage) (normalize.RawFill, error) {
	var e execution
	if err := json.Unmarshal(raw, &e); err != nil {
		return normalize.RawFill{}, fmt.Errorf("decode bybit execution: %w", err)
	}

	var ts int64
	if e.ExecTime != "" {
		v, err := strconv.ParseInt(e.ExecTime, 10, 64)
		if err != nil {
			return normalize.RawFill{}, fmt.Errorf("decode bybit execTime %q: %w", e.ExecTime, err)
		}
		ts = v
	}

	return normalize.RawFill{
		ExecutionID: e.ExecID,
		OrderID:     e.OrderID,
		Symbol:      e.Symbol,
		Side:        e.Side,
		Quantity:    e.ExecQty,
		Price:       e.ExecPrice,
		Fee:         e.ExecFee,
		Timestamp:   ts,
		Payload:     raw,
	}, nil
}
