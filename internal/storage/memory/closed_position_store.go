package memory

import (
	"context"
	"sort"
	"sync"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/storage"
)

// ClosedPositionStore is an in-memory implementation of
// storage.ClosedPositionStore.
type ClosedPositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClosedPosition // keyed by position_id
}

// NewClosedPositionStore creates a new in-memory closed-position store.
func NewClosedPositionStore() *ClosedPositionStore {
	return &ClosedPositionStore{
		data: make(map[string]*domain.ClosedPosition),
	}
}

var _ storage.ClosedPositionStore = (*ClosedPositionStore)(nil)

// Insert adds one position. Returns ErrDuplicateKey if position_id exists.
func (s *ClosedPositionStore) Insert(_ context.Context, p *domain.ClosedPosition) error {
	if p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[p.PositionID] = clone(p)
	return nil
}

// InsertBulk adds multiple positions atomically. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(_ context.Context, positions []*domain.ClosedPosition) error {
	if len(positions) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(positions))

	for _, p := range positions {
		if p == nil || p.PositionID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.PositionID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.PositionID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.PositionID] = struct{}{}
	}

	for _, p := range positions {
		s.data[p.PositionID] = clone(p)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *ClosedPositionStore) GetByID(_ context.Context, positionID string) (*domain.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clone(p), nil
}

// GetByAccountID retrieves all positions for an account, ordered by close time ASC.
func (s *ClosedPositionStore) GetByAccountID(_ context.Context, accountID string) ([]*domain.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedPosition
	for _, p := range s.data {
		if p.AccountID == accountID {
			result = append(result, clone(p))
		}
	}
	sortByCloseTime(result)
	return result, nil
}

// GetBySymbol retrieves an account's positions for one instrument, ordered by close time ASC.
func (s *ClosedPositionStore) GetBySymbol(_ context.Context, accountID, symbol string) ([]*domain.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedPosition
	for _, p := range s.data {
		if p.AccountID == accountID && p.Symbol == symbol {
			result = append(result, clone(p))
		}
	}
	sortByCloseTime(result)
	return result, nil
}

// GetByTimeRange retrieves an account's positions closed within [start, end] (inclusive).
func (s *ClosedPositionStore) GetByTimeRange(_ context.Context, accountID string, start, end int64) ([]*domain.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedPosition
	for _, p := range s.data {
		if p.AccountID == accountID && p.CloseTimestampMs >= start && p.CloseTimestampMs <= end {
			result = append(result, clone(p))
		}
	}
	sortByCloseTime(result)
	return result, nil
}

func sortByCloseTime(positions []*domain.ClosedPosition) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].CloseTimestampMs != positions[j].CloseTimestampMs {
			return positions[i].CloseTimestampMs < positions[j].CloseTimestampMs
		}
		return positions[i].PositionID < positions[j].PositionID
	})
}

// clone deep-copies a position so callers cannot mutate stored state.
func clone(p *domain.ClosedPosition) *domain.ClosedPosition {
	c := *p
	if p.FundingAdjustment != nil {
		adj := *p.FundingAdjustment
		c.FundingAdjustment = &adj
	}
	if p.TradeIDs != nil {
		c.TradeIDs = make([]string, len(p.TradeIDs))
		copy(c.TradeIDs, p.TradeIDs)
	}
	return &c
}
