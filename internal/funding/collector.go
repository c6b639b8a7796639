// Package funding aggregates periodic funding payments per instrument.
package funding

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"exchange-ledger/internal/exchange"
)

// DefaultLookback bounds how many recent funding records are summed per
// symbol.
const DefaultLookback = 100

// Collector fetches and sums signed funding amounts per symbol.
type Collector struct {
	client   exchange.Client
	lookback int
	logger   logrus.FieldLogger
}

// Options contains configuration for creating a Collector.
type Options struct {
	Client   exchange.Client
	Lookback int // defaults to DefaultLookback
	Logger   logrus.FieldLogger
}

// NewCollector creates a funding collector for one account.
func NewCollector(opts Options) *Collector {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{client: opts.Client, lookback: lookback, logger: logger}
}

// Collect returns net funding per symbol. Failure is isolated per symbol:
// a failed fetch logs a warning and omits the symbol from the result, which
// downstream treats as zero funding. This is a deliberate degraded-accuracy
// policy, not a silent correctness assumption.
func (c *Collector) Collect(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	net := make(map[string]decimal.Decimal, len(symbols))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := c.client.FetchFundingHistory(ctx, symbol, c.lookback)
		if err != nil {
			c.logger.WithError(err).WithField("symbol", symbol).
				Warn("funding fetch failed, treating symbol as zero funding")
			continue
		}

		sum := decimal.Zero
		for _, r := range records {
			sum = sum.Add(r.Amount)
		}
		net[symbol] = sum
	}

	return net, nil
}
