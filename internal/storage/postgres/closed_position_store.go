package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/storage"
)

// ClosedPositionStore implements storage.ClosedPositionStore using PostgreSQL.
// Decimal columns are NUMERIC; values travel as strings so no precision is
// lost between Go and the database.
type ClosedPositionStore struct {
	pool *Pool
}

// NewClosedPositionStore creates a new ClosedPositionStore.
func NewClosedPositionStore(pool *Pool) *ClosedPositionStore {
	return &ClosedPositionStore{pool: pool}
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
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9,
		$10, $11, $12,
		$13, $14, $15
	)
`

// Numeric columns are cast to text so they can be scanned losslessly into
// decimal values regardless of wire format.
const selectColumns = `
	position_id, account_id, symbol, book,
	matched_quantity::text, avg_entry_price::text, avg_exit_price::text,
	entry_value::text, exit_value::text,
	realized_pnl::text, funding_adjustment::text, final_realized_pnl::text,
	open_time_ms, close_time_ms, trade_ids
`

// Insert adds one position. Returns ErrDuplicateKey if position_id exists.
func (s *ClosedPositionStore) Insert(ctx context.Context, p *domain.ClosedPosition) error {
	_, err := s.pool.Exec(ctx, insertQuery, insertArgs(p)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert closed position: %w", err)
	}
	return nil
}

// InsertBulk adds multiple positions atomically. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(ctx context.Context, positions []*domain.ClosedPosition) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range positions {
		if _, err := tx.Exec(ctx, insertQuery, insertArgs(p)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert closed position in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *ClosedPositionStore) GetByID(ctx context.Context, positionID string) (*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + ` FROM closed_positions WHERE position_id = $1`

	row := s.pool.QueryRow(ctx, query, positionID)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get closed position by id: %w", err)
	}
	return p, nil
}

// GetByAccountID retrieves all positions for an account, ordered by close time ASC.
func (s *ClosedPositionStore) GetByAccountID(ctx context.Context, accountID string) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = $1
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID)
}

// GetBySymbol retrieves an account's positions for one instrument, ordered by close time ASC.
func (s *ClosedPositionStore) GetBySymbol(ctx context.Context, accountID, symbol string) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = $1 AND symbol = $2
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID, symbol)
}

// GetByTimeRange retrieves an account's positions closed within [start, end] (inclusive).
func (s *ClosedPositionStore) GetByTimeRange(ctx context.Context, accountID string, start, end int64) ([]*domain.ClosedPosition, error) {
	query := `SELECT ` + selectColumns + `
		FROM closed_positions
		WHERE account_id = $1 AND close_time_ms >= $2 AND close_time_ms <= $3
		ORDER BY close_time_ms ASC, position_id ASC`
	return s.queryPositions(ctx, query, accountID, start, end)
}

func (s *ClosedPositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.ClosedPosition, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
	var funding *string
	if p.FundingAdjustment != nil {
		v := p.FundingAdjustment.String()
		funding = &v
	}
	return []any{
		p.PositionID, p.AccountID, p.Symbol, string(p.Book),
		p.MatchedQuantity.String(), p.AvgEntryPrice.String(), p.AvgExitPrice.String(),
		p.EntryValue.String(), p.ExitValue.String(),
		p.RealizedPnl.String(), funding, p.FinalRealizedPnl.String(),
		p.OpenTimestampMs, p.CloseTimestampMs, p.TradeIDs,
	}
}

func scanPosition(row pgx.Row) (*domain.ClosedPosition, error) {
	var (
		p        domain.ClosedPosition
		book     string
		matched  string
		entry    string
		exit     string
		entryVal string
		exitVal  string
		pnl      string
		funding  *string
		finalPnl string
	)

	err := row.Scan(
		&p.PositionID, &p.AccountID, &p.Symbol, &book,
		&matched, &entry, &exit,
		&entryVal, &exitVal,
		&pnl, &funding, &finalPnl,
		&p.OpenTimestampMs, &p.CloseTimestampMs, &p.TradeIDs,
	)
	if err != nil {
		return nil, err
	}

	p.Book = domain.BookSide(book)
	if p.MatchedQuantity, err = decimal.NewFromString(matched); err != nil {
		return nil, fmt.Errorf("parse matched_quantity: %w", err)
	}
	if p.AvgEntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, fmt.Errorf("parse avg_entry_price: %w", err)
	}
	if p.AvgExitPrice, err = decimal.NewFromString(exit); err != nil {
		return nil, fmt.Errorf("parse avg_exit_price: %w", err)
	}
	if p.EntryValue, err = decimal.NewFromString(entryVal); err != nil {
		return nil, fmt.Errorf("parse entry_value: %w", err)
	}
	if p.ExitValue, err = decimal.NewFromString(exitVal); err != nil {
		return nil, fmt.Errorf("parse exit_value: %w", err)
	}
	if p.RealizedPnl, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("parse realized_pnl: %w", err)
	}
	if p.FinalRealizedPnl, err = decimal.NewFromString(finalPnl); err != nil {
		return nil, fmt.Errorf("parse final_realized_pnl: %w", err)
	}
	if funding != nil {
		adj, err := decimal.NewFromString(*funding)
		if err != nil {
			return nil, fmt.Errorf("parse funding_adjustment: %w", err)
		}
		p.FundingAdjustment = &adj
	}
	return &p, nil
}
