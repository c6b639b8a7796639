package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/exchange/stub"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func record(amount string, ts int64) domain.FundingRecord {
	v, _ := decimal.NewFromString(amount)
	return domain.FundingRecord{Amount: v, TimestampMs: ts}
}

func TestCollect_SumsSignedAmounts(t *testing.T) {
	client := stub.NewClient(nil)
	client.Funding = map[string][]domain.FundingRecord{
		"BTCUSDT": {record("-0.5", 1000), record("0.2", 2000), record("-0.1", 3000)},
	}
	collector := NewCollector(Options{Client: client, Logger: quietLogger()})

	net, err := collector.Collect(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !net["BTCUSDT"].Equal(decimal.RequireFromString("-0.4")) {
		t.Errorf("expected net -0.4, got %s", net["BTCUSDT"])
	}
}

func TestCollect_FailureIsolatedPerSymbol(t *testing.T) {
	// ETHUSDT fails; BTCUSDT still comes back, ETHUSDT is simply absent.
	client := stub.NewClient(nil)
	client.Funding = map[string][]domain.FundingRecord{
		"BTCUSDT": {record("1", 1000)},
		"ETHUSDT": {record("2", 1000)},
	}
	client.FundingFailures = map[string]bool{"ETHUSDT": true}
	collector := NewCollector(Options{Client: client, Logger: quietLogger()})

	net, err := collector.Collect(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("per-symbol failure must not abort the run: %v", err)
	}
	if _, ok := net["ETHUSDT"]; ok {
		t.Error("expected failed symbol omitted from result")
	}
	if !net["BTCUSDT"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected BTCUSDT net 1, got %s", net["BTCUSDT"])
	}
}

func TestCollect_LookbackTrimsOldRecords(t *testing.T) {
	client := stub.NewClient(nil)
	client.Funding = map[string][]domain.FundingRecord{
		"BTCUSDT": {record("100", 1000), record("1", 2000), record("2", 3000)},
	}
	collector := NewCollector(Options{Client: client, Lookback: 2, Logger: quietLogger()})

	net, err := collector.Collect(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !net["BTCUSDT"].Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected only the 2 newest records summed, got %s", net["BTCUSDT"])
	}
}

func TestCollect_NoRecords_YieldsZero(t *testing.T) {
	client := stub.NewClient(nil)
	collector := NewCollector(Options{Client: client, Logger: quietLogger()})

	net, err := collector.Collect(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := net["BTCUSDT"]; !ok || !got.IsZero() {
		t.Errorf("expected explicit zero for symbol with no records, got %v", net)
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := NewCollector(Options{Client: stub.NewClient(nil), Logger: quietLogger()})
	if _, err := collector.Collect(ctx, []string{"BTCUSDT"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
