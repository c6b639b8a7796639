// Package config builds runtime configuration from environment variables.
// Flags on the aggregate command override whatever is loaded here.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultPageSize        = 500
	defaultHardCap         = 5000
	defaultFundingLookback = 100
	defaultMetricsAddr     = ":9090"
)

// Config keeps the runtime configuration for the aggregator.
type Config struct {
	Postgres   PostgresConfig
	Clickhouse ClickhouseConfig
	Ingestion  IngestionConfig
	Metrics    MetricsConfig
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string // empty disables Postgres persistence
}

// ClickhouseConfig stores ClickHouse connection parameters.
type ClickhouseConfig struct {
	DSN string // empty disables ClickHouse persistence
}

// IngestionConfig holds fill and funding fetch settings.
type IngestionConfig struct {
	PageSize        int
	HardCap         int
	FundingLookback int
}

// MetricsConfig holds the Prometheus listen settings.
type MetricsConfig struct {
	Addr string // empty disables the metrics server
}

// Load builds Config from environment variables. Persistence DSNs are
// optional since the aggregator can run purely in memory.
func Load() (*Config, error) {
	pageSize, err := getInt("LEDGER_PAGE_SIZE", defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_PAGE_SIZE: %w", err)
	}
	hardCap, err := getInt("LEDGER_HARD_CAP", defaultHardCap)
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_HARD_CAP: %w", err)
	}
	lookback, err := getInt("LEDGER_FUNDING_LOOKBACK", defaultFundingLookback)
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_FUNDING_LOOKBACK: %w", err)
	}

	return &Config{
		Postgres: PostgresConfig{
			DSN: os.Getenv("LEDGER_POSTGRES_DSN"),
		},
		Clickhouse: ClickhouseConfig{
			DSN: os.Getenv("LEDGER_CLICKHOUSE_DSN"),
		},
		Ingestion: IngestionConfig{
			PageSize:        pageSize,
			HardCap:         hardCap,
			FundingLookback: lookback,
		},
		Metrics: MetricsConfig{
			Addr: getString("LEDGER_METRICS_ADDR", defaultMetricsAddr),
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}
