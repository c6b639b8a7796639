package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/storage"
)

// ClosedPositionStore implements storage.ClosedPositionStore using ClickHouse.
// This is the analytics archive of the ledger; MergeTree does not enforce
// uniqueness at insert time, so append-only semantics are enforced by an
// explicit existence check before insert.
type ClosedPositionStore struct {
	conn *Conn
}

// NewClosedPositionStore creates a new ClosedPositionStore.
func NewClosedPositionStore(conn *Conn) *ClosedPositionStore {
	return &ClosedPositionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ClosedPositionStore = (*ClosedPositionStore)(nil)

const insertQuery = `
	INSERT INTO closed_positions (
		position_id, account_id, symbol, book,
		matched_quantity, avg_entry_price, avg_exit_price,
		entry_value, exit_value,
		realized_pnl, funding_adjustment, final_realized_pnl,
		open_time_ms, close_time_ms, trade_ids
	) VALUES (
		?, ?, ?, ?,
		?, ?, ?,
		?, ?,
		?, ?, ?,
		?, ?, ?
	)
`

const selectColumns = `
	position_id, account_id, symbol, book,
	matched_quantity, avg_entry_price, avg_exit_price,
	entry_value, exit_value,
	realized_pnl, funding_adjustment, final_realized_pnl,
	open_time_ms, close_time_ms, trade_ids
`

// Insert adds one position. Returns ErrDuplicateKey if position_id exists.
func (s *ClosedPositionStore) Insert(ctx context.Context, p *domain.ClosedPosition) error {
	exists, err := s.exists(ctx, p.PositionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	if err := s.conn.Exec(ctx, insertQuery, insertArgs(p)...); err != nil {
		return fmt.Errorf("insert closed position: %w", err)
	}
	return nil
}

// InsertBulk adds multiple positions in one batch. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(ctx context.Context, positions []*domain.ClosedPosition) error {
	if len(positions) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		if _, dup := seen[p.PositionID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[p.PositionID] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, p := range positions {
		exists, err := s.exists(ctx, p.PositionID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO closed_positions (
			position_id, account_id, symbol, book,
			matched_quantity, avg_entry_price, avg_exit_price,
			entry_value, exit_value,
			realized_pnl, funding_adjustment, final_realized_pnl,
			open_time_ms, close_time_ms, trade_ids
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range positions {
		if err := batch.Append(insertArgs(p)...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *ClosedPositionStore) GetByID(ctx context.Context, positionID string) (*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + ` FROM closed_positions WHERE position_id = ? LIMIT 1`

	rows, err := s.conn.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("get closed position by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, storage.ErrNotFound
	}
	return scanPosition(rows)
}

// GetByAccountID retrieves all positions for an account, ordered by close time ASC.
func (s *ClosedPositionStore) GetByAccountID(ctx context.Context, accountID string) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = ?
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID)
}

// GetBySymbol retrieves an account's positions for one instrument, ordered by close time ASC.
func (s *ClosedPositionStore) GetBySymbol(ctx context.Context, accountID, symbol string) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = ? AND symbol = ?
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID, symbol)
}

// GetByTimeRange retrieves an account's positions closed within [start, end] (inclusive).
func (s *ClosedPositionStore) GetByTimeRange(ctx context.Context, accountID string, start, end int64) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = ? AND close_time_ms >= ? AND close_time_ms <= ?
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID, start, end)
}

func (s *ClosedPositionStore) exists(ctx context.Context, positionID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM closed_positions WHERE position_id = ?`, positionID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ClosedPositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.ClosedPosition, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.ClosedPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closed position: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed positions: %w", err)
	}
	return result, nil
}

func insertArgs(p *domain.ClosedPosition) []any {
	return []any{
		p.PositionID, p.AccountID, p.Symbol, string(p.Book),
		p.MatchedQuantity, p.AvgEntryPrice, p.AvgExitPrice,
		p.EntryValue, p.ExitValue,
		p.RealizedPnl, p.FundingAdjustment, p.FinalRealizedPnl,
		p.OpenTimestampMs, p.CloseTimestampMs, p.TradeIDs,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.ClosedPosition, error) {
	var (
		p       domain.ClosedPosition
		book    string
		funding *decimal.Decimal
	)

	err := row.Scan(
		&p.PositionID, &p.AccountID, &p.Symbol, &book,
		&p.MatchedQuantity, &p.AvgEntryPrice, &p.AvgExitPrice,
		&p.EntryValue, &p.ExitValue,
		&p.RealizedPnl, &funding, &p.FinalRealizedPnl,
		&p.OpenTimestampMs, &p.CloseTimestampMs, &p.TradeIDs,
	)
	if err != nil {
		return nil, err
	}

	p.Book = domain.BookSide(book)
	p.FundingAdjustment = funding
	return &p, nil
}
