// Package fileclient replays recorded exchange data from a fixture directory
// so the full pipeline can run without network access. The directory holds
// one JSON file per account, named <accountID>.json.
package fileclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"

	"exchange-ledger/internal/domain"
)

// timedFill pairs a vendor-native record with its execution time, in the
// vendor's native unit, which the recording step captures so replay can
// answer cursor queries.
type timedFill struct {
	Time   int64           `json:"time"`
	Record json.RawMessage `json:"record"`
}

type fundingRecord struct {
	Symbol      string `json:"symbol"`
	Amount      string `json:"amount"`
	TimestampMs int64  `json:"timestampMs"`
}

type position struct {
	Symbol     string `json:"symbol"`
	Book       string `json:"book"`
	Quantity   string `json:"quantity"`
	EntryPrice string `json:"entryPrice"`
}

type balance struct {
	Asset     string `json:"asset"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

type fixture struct {
	Fills     []timedFill     `json:"fills"`
	Funding   []fundingRecord `json:"funding"`
	Positions []position      `json:"positions"`
	Balances  []balance       `json:"balances"`
}

// Client implements exchange.Client over a recorded fixture file.
type Client struct {
	fills     []timedFill
	funding   map[string][]domain.FundingRecord
	positions []domain.ExchangePosition
	balances  []domain.Balance
}

// Open loads the fixture for one account from dir.
func Open(dir, accountID string) (*Client, error) {
	path := filepath.Join(dir, accountID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}

	c := &Client{funding: make(map[string][]domain.FundingRecord)}

	c.fills = f.Fills
	sort.Slice(c.fills, func(i, j int) bool { return c.fills[i].Time < c.fills[j].Time })

	for _, r := range f.Funding {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: funding amount %q: %w", path, r.Amount, err)
		}
		c.funding[r.Symbol] = append(c.funding[r.Symbol], domain.FundingRecord{
			Symbol:      r.Symbol,
			Amount:      amount,
			TimestampMs: r.TimestampMs,
		})
	}

	for _, p := range f.Positions {
		qty, err := decimal.NewFromString(p.Quantity)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: position quantity %q: %w", path, p.Quantity, err)
		}
		entry := decimal.Zero
		if p.EntryPrice != "" {
			entry, err = decimal.NewFromString(p.EntryPrice)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: position entry price %q: %w", path, p.EntryPrice, err)
			}
		}
		c.positions = append(c.positions, domain.ExchangePosition{
			Symbol:     p.Symbol,
			Book:       domain.BookSide(p.Book),
			Quantity:   qty,
			EntryPrice: entry,
		})
	}

	for _, b := range f.Balances {
		total, err := decimal.NewFromString(b.Total)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: balance total %q: %w", path, b.Total, err)
		}
		avail := total
		if b.Available != "" {
			avail, err = decimal.NewFromString(b.Available)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: balance available %q: %w", path, b.Available, err)
			}
		}
		c.balances = append(c.balances, domain.Balance{Asset: b.Asset, Total: total, Available: avail})
	}

	return c, nil
}

// FetchFills returns up to pageSize recorded fills executed at or after
// since, in the vendor's native time unit.
func (c *Client) FetchFills(_ context.Context, since int64, pageSize int) ([]json.RawMessage, error) {
	var page []json.RawMessage
	for _, f := range c.fills {
		if f.Time < since {
			continue
		}
		page = append(page, f.Record)
		if len(page) == pageSize {
			break
		}
	}
	return page, nil
}

// FetchFundingHistory returns the most recent recorded funding for a symbol.
func (c *Client) FetchFundingHistory(_ context.Context, symbol string, lookback int) ([]domain.FundingRecord, error) {
	records := c.funding[symbol]
	if len(records) > lookback {
		records = records[len(records)-lookback:]
	}
	out := make([]domain.FundingRecord, len(records))
	copy(out, records)
	return out, nil
}

// FetchOpenPositions returns the recorded exchange-reported positions.
func (c *Client) FetchOpenPositions(_ context.Context) ([]domain.ExchangePosition, error) {
	out := make([]domain.ExchangePosition, len(c.positions))
	copy(out, c.positions)
	return out, nil
}

// FetchBalances returns the recorded balances.
func (c *Client) FetchBalances(_ context.Context) ([]domain.Balance, error) {
	out := make([]domain.Balance, len(c.balances))
	copy(out, c.balances)
	return out, nil
}
