// Package ingestion paginates through an account's fill history and yields a
// time-ordered canonical trade sequence. A pipeline run is not restartable
// mid-stream: retries re-run ingestion from the start.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/exchange"
	"exchange-ledger/internal/normalize"
)

// Pagination defaults. The hard cap is a safety bound against runaway
// pagination on pathological accounts.
const (
	DefaultPageSize = 500
	DefaultHardCap  = 5000
)

// Result is the outcome of one ingestion run. Partial is set when the run
// stopped early: either the hard cap was reached or a page fetch failed
// persistently, in which case Cause carries the failure.
type Result struct {
	Trades  []*domain.CanonicalTrade
	Partial bool
	Cause   error // nil unless Partial is due to a fetch failure
	Dropped int   // malformed records skipped
	Pages   int   // pages fetched, including the final short page
}

// Pipeline pulls fill pages from one exchange account, normalizes and
// deduplicates them. One Pipeline instance serves exactly one account.
type Pipeline struct {
	client     exchange.Client
	normalizer *normalize.Normalizer
	pageSize   int
	hardCap    int
	logger     logrus.FieldLogger
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	Client     exchange.Client
	Normalizer *normalize.Normalizer
	PageSize   int // defaults to DefaultPageSize
	HardCap    int // defaults to DefaultHardCap
	Logger     logrus.FieldLogger
}

// NewPipeline creates an ingestion pipeline for one account.
func NewPipeline(opts Options) *Pipeline {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	hardCap := opts.HardCap
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		client:     opts.Client,
		normalizer: opts.Normalizer,
		pageSize:   pageSize,
		hardCap:    hardCap,
		logger:     logger,
	}
}

// FetchAllTrades pulls the account's full fill history. The cursor is the
// vendor-reported time of the newest record seen so far plus one unit, kept
// in the exchange's native denomination so the boundary record is not
// re-fetched and later pages are not skipped. Termination: a short page
// (last page) or the hard cap. Each page fetch is retried once; a second
// failure aborts the run and returns whatever was collected so far, flagged
// partial.
func (p *Pipeline) FetchAllTrades(ctx context.Context) (*Result, error) {
	result := &Result{}
	seen := make(map[string]struct{})
	var cursor int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.fetchPage(ctx, cursor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.logger.WithError(err).Warn("page fetch failed twice, returning partial history")
			result.Partial = true
			result.Cause = err
			break
		}
		result.Pages++

		var maxSourceTime int64
		added := 0
		for _, raw := range page {
			trade, err := p.normalizer.Normalize(raw)
			if err != nil {
				result.Dropped++
				p.logger.WithError(err).Warn("skipping malformed fill record")
				continue
			}
			// Cursor advancement stays on the exchange's timeline, not the
			// normalized millisecond one. Inferred-time trades carry a zero
			// SourceTime and never advance the cursor.
			if trade.SourceTime > maxSourceTime {
				maxSourceTime = trade.SourceTime
			}
			if trade.ExecutionID != "" {
				if _, dup := seen[trade.ExecutionID]; dup {
					continue
				}
				seen[trade.ExecutionID] = struct{}{}
			}
			result.Trades = append(result.Trades, trade)
			added++
		}

		lastPage := len(page) < p.pageSize

		// A short final page that lands exactly on the cap is still a
		// complete history; only truncation or a full page at the cap
		// means records were left behind.
		if len(result.Trades) > p.hardCap || (len(result.Trades) == p.hardCap && !lastPage) {
			result.Trades = result.Trades[:p.hardCap]
			result.Partial = true
			p.logger.WithField("hard_cap", p.hardCap).Warn("ingestion hit hard cap, returning partial history")
			break
		}

		if lastPage {
			break
		}

		// A full page that produced no usable cursor cannot advance
		// pagination; bail out rather than loop forever.
		if added == 0 || maxSourceTime == 0 {
			result.Partial = true
			result.Cause = fmt.Errorf("full page yielded no usable records at cursor %d", cursor)
			p.logger.WithField("cursor", cursor).Warn("pagination stalled, returning partial history")
			break
		}

		cursor = maxSourceTime + 1
	}

	SortTrades(result.Trades)
	return result, nil
}

// fetchPage fetches one page, retrying once on failure.
func (p *Pipeline) fetchPage(ctx context.Context, cursor int64) ([]json.RawMessage, error) {
	page, err := p.client.FetchFills(ctx, cursor, p.pageSize)
	if err == nil {
		return page, nil
	}
	p.logger.WithError(err).WithField("cursor", cursor).Debug("page fetch failed, retrying once")

	page, retryErr := p.client.FetchFills(ctx, cursor, p.pageSize)
	if retryErr != nil {
		return nil, fmt.Errorf("fetch fills at cursor %d: %w", cursor, retryErr)
	}
	return page, nil
}
