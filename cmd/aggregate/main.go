package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"exchange-ledger/internal/aggregator"
	"exchange-ledger/internal/config"
	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/exchange"
	"exchange-ledger/internal/exchange/fileclient"
	"exchange-ledger/internal/observability"
	"exchange-ledger/internal/pricing"
	"exchange-ledger/internal/reporting"
	"exchange-ledger/internal/storage"
	chstore "exchange-ledger/internal/storage/clickhouse"
	"exchange-ledger/internal/storage/memory"
	"exchange-ledger/internal/storage/migrations"
	pgstore "exchange-ledger/internal/storage/postgres"
)

func main() {
	accountsPath := flag.String("accounts", "", "Path to the accounts JSON file")
	fixtureDir := flag.String("fixture-dir", "", "Directory with per-account fixture files (network-free mode)")
	store := flag.String("store", "memory", "Closed position store: memory, postgres or clickhouse")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides LEDGER_POSTGRES_DSN)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides LEDGER_CLICKHOUSE_DSN)")
	priceEndpoint := flag.String("price-endpoint", "", "WebSocket mark price endpoint (empty disables valuation)")
	priceSymbols := flag.String("price-symbols", "", "Comma-separated symbols to subscribe for mark prices")
	outDir := flag.String("out", ".", "Directory for CSV and Markdown output")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides LEDGER_METRICS_ADDR)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load configuration")
	}
	if *postgresDSN != "" {
		cfg.Postgres.DSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Clickhouse.DSN = *clickhouseDSN
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	if *accountsPath == "" {
		logger.Fatal("--accounts is required")
	}
	accounts, err := loadAccounts(*accountsPath)
	if err != nil {
		logger.WithError(err).Fatal("load accounts")
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.WithField("addr", cfg.Metrics.Addr).Info("starting metrics server")
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		select {
		case <-sigCh:
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out")
			os.Exit(1)
		}
	}()

	if err := run(ctx, logger, cfg, accounts, *fixtureDir, *store, *priceEndpoint, splitSymbols(*priceSymbols), *outDir); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("aggregation failed")
	}
}

func run(ctx context.Context, logger *logrus.Logger, cfg *config.Config, accounts []domain.Account, fixtureDir, storeKind, priceEndpoint string, priceSymbols []string, outDir string) error {
	if fixtureDir == "" {
		return fmt.Errorf("--fixture-dir is required, aggregation runs from recorded account fixtures")
	}

	positionStore, cleanup, err := openStore(ctx, cfg, storeKind)
	if err != nil {
		return err
	}
	defer cleanup()

	var prices pricing.PriceSource
	if priceEndpoint != "" {
		stream, err := pricing.NewStream(ctx, priceEndpoint, nil, logger)
		if err != nil {
			return fmt.Errorf("connect price stream: %w", err)
		}
		defer stream.Close()
		if err := stream.Subscribe(priceSymbols); err != nil {
			logger.WithError(err).Warn("mark price subscription failed, valuation disabled")
		} else {
			prices = stream
		}
	}

	session := aggregator.NewSession(func(account domain.Account) (exchange.Client, error) {
		return fileclient.Open(fixtureDir, account.ID)
	})
	defer session.Close()

	metrics := observability.NewMetrics("")
	facade := aggregator.New(aggregator.Options{
		Session:         session,
		Store:           positionStore,
		Prices:          prices,
		PageSize:        cfg.Ingestion.PageSize,
		HardCap:         cfg.Ingestion.HardCap,
		FundingLookback: cfg.Ingestion.FundingLookback,
		Logger:          logger,
		Metrics:         metrics,
	})

	bundles := facade.Aggregate(ctx, accounts)
	if err := writeReports(logger, outDir, bundles); err != nil {
		return err
	}
	for _, b := range bundles {
		if b.Error != "" {
			return nil
		}
	}
	metrics.LastSuccessfulRun.SetToCurrentTime()
	return nil
}

// openStore picks the closed position backend and runs its migrations.
func openStore(ctx context.Context, cfg *config.Config, kind string) (storage.ClosedPositionStore, func(), error) {
	switch kind {
	case "memory":
		return memory.NewClosedPositionStore(), func() {}, nil
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, nil, fmt.Errorf("postgres store requires --postgres-dsn or LEDGER_POSTGRES_DSN")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		return pgstore.NewClosedPositionStore(pool), pool.Close, nil
	case "clickhouse":
		if cfg.Clickhouse.DSN == "" {
			return nil, nil, fmt.Errorf("clickhouse store requires --clickhouse-dsn or LEDGER_CLICKHOUSE_DSN")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		return chstore.NewClosedPositionStore(conn), func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// loadAccounts reads the accounts JSON file: an array of {id, name, vendor}.
func loadAccounts(path string) ([]domain.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Vendor string `json:"vendor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	accounts := make([]domain.Account, 0, len(raw))
	for _, a := range raw {
		if a.ID == "" || a.Vendor == "" {
			return nil, fmt.Errorf("account entry missing id or vendor in %s", path)
		}
		accounts = append(accounts, domain.Account{ID: a.ID, Name: a.Name, Vendor: a.Vendor})
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts defined in %s", path)
	}
	return accounts, nil
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func writeReports(logger *logrus.Logger, outDir string, bundles []domain.AccountBundle) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	var closed []*domain.ClosedPosition
	var deltas []domain.ReconciliationDelta
	for _, b := range bundles {
		closed = append(closed, b.ClosedPositions...)
		deltas = append(deltas, b.Reconciliation...)
		if b.Error != "" {
			logger.WithFields(logrus.Fields{
				"account": b.AccountID,
				"error":   b.Error,
			}).Error("account failed")
		}
	}

	files := map[string]string{
		"closed_positions.csv": reporting.RenderClosedPositionsCSV(closed),
		"reconciliation.csv":   reporting.RenderReconciliationCSV(deltas),
		"report.md":            reporting.RenderMarkdown(bundles, time.Now().UTC()),
	}
	for name, content := range files {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		logger.WithField("path", path).Info("report written")
	}

	summary := make([]string, 0, len(bundles))
	for _, b := range bundles {
		status := "ok"
		if b.Error != "" {
			status = "failed"
		} else if b.Partial {
			status = "partial"
		}
		summary = append(summary, fmt.Sprintf("%s=%s", b.AccountID, status))
	}
	logger.WithField("accounts", strings.Join(summary, " ")).Info("aggregation complete")
	return nil
}
