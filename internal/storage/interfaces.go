package storage

import (
	"context"

	"exchange-ledger/internal/domain"
)

// ClosedPositionStore provides access to the durable closed-position ledger.
// Position IDs are deterministic, so re-running an account pipeline over the
// same fills produces the same keys and duplicates are rejected rather than
// double counted.
type ClosedPositionStore interface {
	// Insert adds one closed position. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, p *domain.ClosedPosition) error

	// InsertBulk adds multiple positions atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, positions []*domain.ClosedPosition) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.ClosedPosition, error)

	// GetByAccountID retrieves all positions for an account, ordered by close time ASC.
	GetByAccountID(ctx context.Context, accountID string) ([]*domain.ClosedPosition, error)

	// GetBySymbol retrieves an account's positions for one instrument, ordered by close time ASC.
	GetBySymbol(ctx context.Context, accountID, symbol string) ([]*domain.ClosedPosition, error)

	// GetByTimeRange retrieves an account's positions closed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, accountID string, start, end int64) ([]*domain.ClosedPosition, error)
}
