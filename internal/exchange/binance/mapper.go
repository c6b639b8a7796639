// Package binance maps Binance USD-M futures fill records to the neutral
// fill shape consumed by the normalizer.
package binance

import (
	"encoding/json"
	"fmt"

	"exchange-ledger/internal/normalize"
)

// Vendor is the registry key for this mapper.
const Vendor = "binance-futures"

// userTrade mirrors the /fapi/v1/userTrades record shape. Numeric IDs arrive
// as JSON numbers, amounts as quoted decimal strings.
type userTrade struct {
	Symbol       string      `json:"symbol"`
	ID           json.Number `json:"id"`
	OrderID      json.Number `json:"orderId"`
	Side         string      `json:"side"`
	Price        string      `json:"price"`
	Qty          string      `json:"qty"`
	Commission   string      `json:"commission"`
	Time         int64       `json:"time"`
	PositionSide string      `json:"positionSide"`
}

// Mapper implements normalize.Mapper for Binance futures fills.
type Mapper struct{}

// NewMapper creates a Binance futures fill mapper.
func NewMapper() *Mapper { return &Mapper{} }

var _ normalize.Mapper = (*Mapper)(nil)

// MapFill decodes one userTrades record.
func (m *Mapper) MapFill(raw json.RawMessage) (normalize.RawFill, error) {
	var t userTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return normalize.RawFill{}, fmt.Errorf("decode binance fill: %w", err)
	}

	return normalize.RawFill{
		ExecutionID: t.ID.String(),
		OrderID:     t.OrderID.String(),
		Symbol:      t.Symbol,
		Side:        t.Side,
		Quantity:    t.Qty,
		Price:       t.Price,
		Fee:         t.Commission,
		Timestamp:   t.Time,
		Payload:     raw,
	}, nil
}
