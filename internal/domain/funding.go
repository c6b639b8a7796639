package domain

import "github.com/shopspring/decimal"

// FundingRecord is one periodic funding payment for a perpetual instrument.
// Negative amounts were paid by the account, positive amounts received.
// Records are transient: consumed once by funding attribution and discarded.
type FundingRecord struct {
	Symbol      string
	Amount      decimal.Decimal
	TimestampMs int64
}
