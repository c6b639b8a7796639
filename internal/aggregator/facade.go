package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/exchange"
	"exchange-ledger/internal/funding"
	"exchange-ledger/internal/ingestion"
	"exchange-ledger/internal/matching"
	"exchange-ledger/internal/normalize"
	"exchange-ledger/internal/observability"
	"exchange-ledger/internal/pricing"
	"exchange-ledger/internal/reconcile"
	"exchange-ledger/internal/storage"
)

// Facade runs the full ledger pipeline for a set of accounts concurrently.
// Every per-account failure is caught at the account boundary and converted
// into a bundle populated with defaults plus a non-empty Error, so one bad
// account never hides the others.
type Facade struct {
	session         *Session
	store           storage.ClosedPositionStore
	prices          pricing.PriceSource
	pageSize        int
	hardCap         int
	fundingLookback int
	logger          logrus.FieldLogger
	metrics         *observability.Metrics
	clock           func() time.Time
}

// Options contains configuration for creating a Facade.
type Options struct {
	Session *Session

	// Store, when non-nil, receives every closed position. Duplicate keys
	// are skipped so repeated runs over the same history stay idempotent.
	Store storage.ClosedPositionStore

	// Prices, when non-nil, supplies mark prices for open position
	// valuation. Missing symbols leave UnrealizedPnl at zero.
	Prices pricing.PriceSource

	PageSize        int // per-page fill fetch size, defaults to ingestion.DefaultPageSize
	HardCap         int // max fills per account per run, defaults to ingestion.DefaultHardCap
	FundingLookback int // funding records fetched per symbol, defaults to funding.DefaultLookback

	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
}

// New creates an aggregation facade.
func New(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Facade{
		session:         opts.Session,
		store:           opts.Store,
		prices:          opts.Prices,
		pageSize:        opts.PageSize,
		hardCap:         opts.HardCap,
		fundingLookback: opts.FundingLookback,
		logger:          logger,
		metrics:         opts.Metrics,
		clock:           time.Now,
	}
}

// WithClock overrides the timestamp source. Intended for tests.
func (f *Facade) WithClock(clock func() time.Time) *Facade {
	f.clock = clock
	return f
}

// Aggregate runs the pipeline for every account concurrently and returns one
// bundle per account, in input order. Aggregate itself never fails: account
// errors are reported inside the corresponding bundle.
func (f *Facade) Aggregate(ctx context.Context, accounts []domain.Account) []domain.AccountBundle {
	bundles := make([]domain.AccountBundle, len(accounts))

	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func(i int, account domain.Account) {
			defer wg.Done()
			bundles[i] = f.runAccount(ctx, account)
		}(i, account)
	}
	wg.Wait()

	return bundles
}

// runAccount executes ingest, match, funding, reconciliation and valuation
// for one account. Any error short of a per-symbol degradation aborts the
// account and lands in bundle.Error.
func (f *Facade) runAccount(ctx context.Context, account domain.Account) domain.AccountBundle {
	started := f.clock()
	logger := f.logger.WithField("account", account.ID)

	bundle := domain.AccountBundle{
		AccountID:       account.ID,
		Balances:        []domain.Balance{},
		OpenPositions:   []domain.OpenPositionView{},
		ClosedPositions: []*domain.ClosedPosition{},
		Reconciliation:  []domain.ReconciliationDelta{},
		LastUpdatedMs:   f.clock().UnixMilli(),
	}
	fail := func(err error) domain.AccountBundle {
		logger.WithError(err).Error("account aggregation failed")
		bundle.Error = err.Error()
		if f.metrics != nil {
			f.metrics.AccountRunsTotal.WithLabelValues("error").Inc()
		}
		return bundle
	}

	client, err := f.session.Client(account)
	if err != nil {
		return fail(err)
	}
	mapper, err := exchange.MapperFor(account.Vendor)
	if err != nil {
		return fail(err)
	}

	pipeline := ingestion.NewPipeline(ingestion.Options{
		Client:     client,
		Normalizer: normalize.NewNormalizer(mapper),
		PageSize:   f.pageSize,
		HardCap:    f.hardCap,
		Logger:     logger,
	})
	ingested, err := pipeline.FetchAllTrades(ctx)
	if err != nil {
		return fail(err)
	}
	bundle.Partial = ingested.Partial
	if f.metrics != nil {
		f.metrics.FillsFetched.WithLabelValues(account.ID).Add(float64(len(ingested.Trades)))
		f.metrics.FillsRejected.WithLabelValues(account.ID).Add(float64(ingested.Dropped))
		f.metrics.PagesFetched.WithLabelValues(account.ID).Add(float64(ingested.Pages))
		if ingested.Partial {
			f.metrics.PartialIngestion.WithLabelValues(account.ID).Inc()
		}
	}

	matcher := matching.NewSession(account.ID)
	matched, err := matcher.Match(ingested.Trades)
	if err != nil {
		var violation *matching.InventoryInvariantViolation
		if errors.As(err, &violation) && f.metrics != nil {
			f.metrics.InvariantViolations.WithLabelValues(account.ID).Inc()
		}
		return fail(err)
	}
	if f.metrics != nil {
		f.metrics.PositionsClosed.WithLabelValues(account.ID).Add(float64(len(matched.Closed)))
	}

	collector := funding.NewCollector(funding.Options{
		Client:   client,
		Lookback: f.fundingLookback,
		Logger:   logger,
	})
	symbols := tradedSymbols(matched)
	net, err := collector.Collect(ctx, symbols)
	if err != nil {
		return fail(err)
	}
	// The collector omits symbols whose fetch failed, so the gap between
	// requested and returned symbols is the failure count.
	if f.metrics != nil {
		if failed := len(symbols) - len(net); failed > 0 {
			f.metrics.FundingFetchErrors.WithLabelValues(account.ID).Add(float64(failed))
		}
	}
	unattributed := matching.ApplyFunding(matched, net)
	for symbol, amount := range unattributed {
		logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"amount": amount.String(),
		}).Warn("funding matched no position, left unattributed")
		if f.metrics != nil {
			f.metrics.FundingUnattributed.WithLabelValues(account.ID).Inc()
		}
	}

	bundle.ClosedPositions = matched.Closed
	bundle.OpenPositions = f.valueOpenLots(matched.Open)
	bundle.Reconciliation = f.reconcileAccount(ctx, client, matched.Open, logger)
	if f.metrics != nil {
		f.metrics.ReconciliationDeltas.WithLabelValues(account.ID).Set(float64(len(bundle.Reconciliation)))
	}

	balances, err := client.FetchBalances(ctx)
	if err != nil {
		logger.WithError(err).Warn("balance fetch failed, reporting empty balances")
	} else {
		bundle.Balances = balances
	}

	if f.store != nil {
		if err := f.persistClosed(ctx, matched.Closed); err != nil {
			return fail(err)
		}
	}

	bundle.LastUpdatedMs = f.clock().UnixMilli()
	if f.metrics != nil {
		f.metrics.AccountRunsTotal.WithLabelValues("ok").Inc()
		f.metrics.AccountDuration.WithLabelValues(account.ID).Observe(f.clock().Sub(started).Seconds())
	}
	return bundle
}

// reconcileAccount compares computed open inventory against the exchange's
// reported positions. Reconciliation is diagnostic: a failed position fetch
// degrades to no deltas rather than failing the account.
func (f *Facade) reconcileAccount(ctx context.Context, client exchange.Client, open []domain.OpenLot, logger logrus.FieldLogger) []domain.ReconciliationDelta {
	reported, err := client.FetchOpenPositions(ctx)
	if err != nil {
		logger.WithError(err).Warn("open position fetch failed, skipping reconciliation")
		return []domain.ReconciliationDelta{}
	}
	return reconcile.Reconcile(open, reported)
}

// valueOpenLots turns remaining open inventory into dashboard views, marking
// to market when a price source knows the symbol.
func (f *Facade) valueOpenLots(open []domain.OpenLot) []domain.OpenPositionView {
	views := make([]domain.OpenPositionView, 0, len(open))
	for _, lot := range open {
		view := domain.OpenPositionView{
			Symbol:          lot.Symbol,
			Book:            lot.Book,
			Quantity:        lot.RemainingQuantity,
			AvgEntryPrice:   lot.WeightedAvgCost,
			FundingCarried:  lot.FundingCarried,
			OpenTimestampMs: lot.OpenTimestampMs,
		}
		if f.prices != nil {
			if mark, ok := f.prices.MarkPrice(lot.Symbol); ok {
				view.MarkPrice = mark
				diff := mark.Sub(lot.WeightedAvgCost)
				if lot.Book == domain.BookShort {
					diff = diff.Neg()
				}
				view.UnrealizedPnl = diff.Mul(lot.RemainingQuantity)
			}
		}
		views = append(views, view)
	}
	return views
}

// persistClosed writes closed positions one at a time so duplicates from a
// re-run are skipped without aborting the rest of the batch.
func (f *Facade) persistClosed(ctx context.Context, closed []*domain.ClosedPosition) error {
	for _, position := range closed {
		err := f.store.Insert(ctx, position)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			if f.metrics != nil {
				f.metrics.DBQueryErrors.WithLabelValues("store", "insert").Inc()
			}
			return err
		}
	}
	return nil
}

// tradedSymbols returns the sorted set of symbols touched by the matching
// pass. Funding is only fetched for symbols the account actually traded.
func tradedSymbols(result *matching.Result) []string {
	seen := make(map[string]struct{})
	for _, position := range result.Closed {
		seen[position.Symbol] = struct{}{}
	}
	for _, lot := range result.Open {
		seen[lot.Symbol] = struct{}{}
	}
	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
