package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"
)

// ClickHouseConfig is read from the environment; every field has a local
// development default.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Table    string
	User     string
	Password string
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func ClickHouseConfigFromEnv() ClickHouseConfig {
	return ClickHouseConfig{
		Addr:     envOr("CH_ADDR", "localhost:9000"),
		Database: envOr("CH_DATABASE", "swing"),
		Table:    envOr("CH_TABLE", "daily_bars"),
		User:     envOr("CH_USER", "swing"),
		Password: envOr("CH_PASSWORD", "swing123"),
	}
}

// BarStore reads and writes daily bars in ClickHouse. The table is a
// ReplacingMergeTree keyed by (ticker, date) so re-ingesting a window is
// idempotent.
type BarStore struct {
	conn     clickhouse.Conn
	database string
	table    string
}

func OpenBarStore(ctx context.Context, cfg ClickHouseConfig) (*BarStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &BarStore{conn: conn, database: cfg.Database, table: cfg.Table}, nil
}

func (s *BarStore) Close() error { return s.conn.Close() }

func (s *BarStore) EnsureSchema(ctx context.Context) error {
	dbDDL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)
	if err := s.conn.Exec(ctx, dbDDL); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	tableDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			ticker String,
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (ticker, date)
		SETTINGS index_granularity = 8192
	`, s.database, s.table)
	return s.conn.Exec(ctx, tableDDL)
}

// DailyBars implements BarSource. FINAL collapses replaced versions so
// callers never see duplicate dates.
func (s *BarStore) DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	q := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE ticker = ?`, s.database, s.table)
	args := []any{ticker}
	if !from.IsZero() {
		q += " AND date >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		q += " AND date <= ?"
		args = append(args, to)
	}
	q += " ORDER BY date"

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar %s: %w", ticker, err)
		}
		if b.Valid() {
			bars = append(bars, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// InsertDailyBars batch-inserts one instrument's bars with deduplication on.
func (s *BarStore) InsertDailyBars(ctx context.Context, ticker string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.%s SETTINGS insert_deduplicate=1", s.database, s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano()) // same for this file; ReplacingMergeTree keeps last
	for _, b := range bars {
		if err := batch.Append(ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, now, ver); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	return batch.Send()
}

// Tickers lists distinct instruments present in the store.
func (s *BarStore) Tickers(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT ticker FROM %s.%s ORDER BY ticker", s.database, s.table)
	rows, err := s.conn.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExplainCHError unwraps ClickHouse protocol exceptions for readable logs.
func ExplainCHError(err error) string {
	var ex *chproto.Exception
	if errors.As(err, &ex) {
		return fmt.Sprintf("ClickHouse [%d] %s (%s)", ex.Code, ex.Message, ex.Name)
	}
	return err.Error()
}
