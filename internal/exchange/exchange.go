// Package exchange defines the connectivity collaborator the engine reads
// exchange state through. The engine treats implementations as untrusted:
// every returned field is optional until validated by the normalizer.
package exchange

import (
	"context"
	"encoding/json"

	"exchange-ledger/internal/domain"
)

// Client is the read-only view of one exchange account. A Client instance is
// owned by exactly one account pipeline and must not be shared across
// concurrently running pipelines for different accounts; sequential reuse for
// the same account is fine.
type Client interface {
	// FetchFills returns up to pageSize vendor-native fill records executed
	// at or after since. The since value is in the vendor's native time
	// unit, the same unit the vendor's own fill records carry, so cursors
	// derived from record timestamps query correctly regardless of whether
	// the vendor reports seconds or milliseconds. A short page signals the
	// end of history.
	FetchFills(ctx context.Context, since int64, pageSize int) ([]json.RawMessage, error)

	// FetchFundingHistory returns the most recent funding payments for one
	// instrument, capped at lookback records.
	FetchFundingHistory(ctx context.Context, symbol string, lookback int) ([]domain.FundingRecord, error)

	// FetchOpenPositions returns the exchange's own view of open positions.
	FetchOpenPositions(ctx context.Context) ([]domain.ExchangePosition, error)

	// FetchBalances returns per-asset balances, passed through untouched.
	FetchBalances(ctx context.Context) ([]domain.Balance, error)
}
