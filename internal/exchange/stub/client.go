// Package stub provides a fixed in-memory exchange client for testing.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"exchange-ledger/internal/domain"
)

// ErrUnavailable is returned by injected failures.
var ErrUnavailable = errors.New("stub: exchange unavailable")

// TimedFill pairs a vendor-native fill payload with its execution time, in
// the vendor's native unit, so the stub can answer cursor queries without
// understanding the payload.
type TimedFill struct {
	Time int64
	Raw  json.RawMessage
}

// Client implements exchange.Client from fixed in-memory data.
// Failure injection fields simulate flaky network behavior.
type Client struct {
	Fills     []TimedFill
	Funding   map[string][]domain.FundingRecord
	Positions []domain.ExchangePosition
	Balances  []domain.Balance

	// FillFailures fails the first N FetchFills calls with ErrUnavailable.
	FillFailures int
	// FundingFailures marks symbols whose funding fetch always fails.
	FundingFailures map[string]bool

	mu        sync.Mutex
	fillCalls int
}

// NewClient creates a stub client over the given fill history.
func NewClient(fills []TimedFill) *Client {
	sort.Slice(fills, func(i, j int) bool { return fills[i].Time < fills[j].Time })
	return &Client{Fills: fills}
}

// FetchFills returns up to pageSize fills executed at or after since, in
// the vendor's native time unit.
func (c *Client) FetchFills(_ context.Context, since int64, pageSize int) ([]json.RawMessage, error) {
	c.mu.Lock()
	c.fillCalls++
	failing := c.fillCalls <= c.FillFailures
	c.mu.Unlock()
	if failing {
		return nil, ErrUnavailable
	}

	var page []json.RawMessage
	for _, f := range c.Fills {
		if f.Time < since {
			continue
		}
		page = append(page, f.Raw)
		if len(page) == pageSize {
			break
		}
	}
	return page, nil
}

// FetchFundingHistory returns the most recent funding records for a symbol.
func (c *Client) FetchFundingHistory(_ context.Context, symbol string, lookback int) ([]domain.FundingRecord, error) {
	if c.FundingFailures[symbol] {
		return nil, ErrUnavailable
	}
	records := c.Funding[symbol]
	if len(records) > lookback {
		records = records[len(records)-lookback:]
	}
	out := make([]domain.FundingRecord, len(records))
	copy(out, records)
	return out, nil
}

// FetchOpenPositions returns the configured exchange-reported positions.
func (c *Client) FetchOpenPositions(_ context.Context) ([]domain.ExchangePosition, error) {
	out := make([]domain.ExchangePosition, len(c.Positions))
	copy(out, c.Positions)
	return out, nil
}

// FetchBalances returns the configured balances.
func (c *Client) FetchBalances(_ context.Context) ([]domain.Balance, error) {
	out := make([]domain.Balance, len(c.Balances))
	copy(out, c.Balances)
	return out, nil
}
