// Package normalize converts vendor-native fill records into canonical
// trades. All returned fields of the exchange collaborator are treated as
// optional until validated here.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

// msThreshold separates second-denominated from millisecond-denominated
// timestamps: values below 10^12 are treated as seconds.
const msThreshold = 1_000_000_000_000

// MalformedTradeError reports a fill whose quantity, price, or side could not
// be determined. The record is skipped and logged; it never aborts a batch.
type MalformedTradeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedTradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed trade: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed trade: %s: %s", e.Field, e.Reason)
}

func (e *MalformedTradeError) Unwrap() error { return e.Err }

// Normalizer validates raw fills against the canonical trade contract.
type Normalizer struct {
	mapper Mapper
	clock  func() time.Time
}

// NewNormalizer creates a Normalizer for one vendor mapper.
func NewNormalizer(mapper Mapper) *Normalizer {
	return &Normalizer{
		mapper: mapper,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock, used when the exchange omits execution time.
func (n *Normalizer) WithClock(clock func() time.Time) *Normalizer {
	n.clock = clock
	return n
}

// Normalize converts one vendor-native fill into a CanonicalTrade.
// Unrecognized sides fail fast rather than defaulting; a missing fee is a
// silent tolerance (many exchanges omit zero fees); a missing execution time
// defaults to ingestion time and is flagged as inferred.
func (n *Normalizer) Normalize(raw json.RawMessage) (*domain.CanonicalTrade, error) {
	fill, err := n.mapper.MapFill(raw)
	if err != nil {
		return nil, &MalformedTradeError{Field: "payload", Reason: "undecodable fill record", Err: err}
	}

	side := domain.Side(strings.ToLower(strings.TrimSpace(fill.Side)))
	if !side.Valid() {
		return nil, &MalformedTradeError{Field: "side", Reason: fmt.Sprintf("unrecognized value %q", fill.Side)}
	}

	if fill.Symbol == "" {
		return nil, &MalformedTradeError{Field: "symbol", Reason: "missing"}
	}

	qty, err := requirePositive(fill.Quantity)
	if err != nil {
		return nil, &MalformedTradeError{Field: "quantity", Reason: "must be a positive decimal", Err: err}
	}

	price, err := requirePositive(fill.Price)
	if err != nil {
		return nil, &MalformedTradeError{Field: "price", Reason: "must be a positive decimal", Err: err}
	}

	fee := decimal.Zero
	if fill.Fee != "" {
		fee, err = decimal.NewFromString(fill.Fee)
		if err != nil {
			return nil, &MalformedTradeError{Field: "fee", Reason: "not a decimal", Err: err}
		}
	}

	ts := fill.Timestamp
	inferred := false
	switch {
	case ts == 0:
		ts = n.clock().UnixMilli()
		inferred = true
	case ts < msThreshold:
		ts *= 1000
	}

	payload := fill.Payload
	if payload == nil {
		payload = raw
	}

	return &domain.CanonicalTrade{
		ExecutionID:     fill.ExecutionID,
		OrderID:         fill.OrderID,
		Symbol:          fill.Symbol,
		Side:            side,
		Quantity:        qty,
		Price:           price,
		Fee:             fee,
		ExecutionTimeMs: ts,
		SourceTime:      fill.Timestamp,
		TimeInferred:    inferred,
		RawPayload:      payload,
	}, nil
}

func requirePositive(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("missing value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("non-positive value %s", d)
	}
	return d, nil
}
