package normalize

import "encoding/json"

// RawFill is the neutral, not-yet-validated extraction of one vendor-native
// fill record. Numeric fields stay as strings so that vendor formatting
// quirks (quoted numbers, missing fields) are resolved in exactly one place,
// the Normalizer.
type RawFill struct {
	ExecutionID string
	OrderID     string
	Symbol      string
	Side        string // vendor casing preserved, validated downstream
	Quantity    string // decimal string, empty when absent
	Price       string
	Fee         string // empty when the vendor omits zero fees
	Timestamp   int64  // native unit (seconds or milliseconds), 0 when absent
	Payload     json.RawMessage
}

// Mapper extracts a RawFill from one vendor-native fill payload. Each
// supported vendor ships its own implementation; there is no best-effort
// field probing across schemas.
type Mapper interface {
	// MapFill decodes a single fill record. It fails only when the payload
	// cannot be decoded at all; field-level validation belongs to the
	// Normalizer.
	MapFill(raw json.RawMessage) (RawFill, error)
}
