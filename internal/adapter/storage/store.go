package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

var ErrUnknownDialect = errors.New("unknown database driver")

// ParseDialect maps a configured driver name, including its aliases, to the
// database/sql driver it opens with.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "timescale":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, driver)
	}
}

// Store is the durable trade store over database/sql. Queries use $N
// placeholders, which both drivers accept.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// Open connects and pings. driver is "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, dialect, log), nil
}

// New wraps an already open handle.
func New(db *sql.DB, dialect Dialect, log *slog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log.With("component", "store", "dialect", string(dialect)),
	}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) DB() *sql.DB { return s.db }

var postgresSchema = `
CREATE TABLE IF NOT EXISTS market_trades (
	id BIGSERIAL NOT NULL,
	exchange VARCHAR(20) NOT NULL,
	symbol VARCHAR(50) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	receipt_timestamp TIMESTAMPTZ,
	price NUMERIC NOT NULL,
	amount NUMERIC NOT NULL,
	side VARCHAR(8),
	PRIMARY KEY (id, timestamp)
);
CREATE INDEX IF NOT EXISTS idx_market_trades_exchange_symbol_ts ON market_trades (exchange, symbol, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_market_trades_symbol_ts ON market_trades (symbol, timestamp DESC);
CREATE TABLE IF NOT EXISTS prices (
	symbol VARCHAR(50) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	open NUMERIC,
	high NUMERIC,
	low NUMERIC,
	close NUMERIC,
	volume NUMERIC,
	PRIMARY KEY (symbol, timestamp)
);
`

var sqliteSchema = `
CREATE TABLE IF NOT EXISTS market_trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exchange VARCHAR(20) NOT NULL,
	symbol VARCHAR(50) NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	receipt_timestamp TIMESTAMP,
	price NUMERIC NOT NULL,
	amount NUMERIC NOT NULL,
	side VARCHAR(8)
);
CREATE INDEX IF NOT EXISTS idx_market_trades_exchange_symbol_ts ON market_trades (exchange, symbol, timestamp);
CREATE INDEX IF NOT EXISTS idx_market_trades_symbol_ts ON market_trades (symbol, timestamp);
CREATE TABLE IF NOT EXISTS prices (
	symbol VARCHAR(50) NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	open NUMERIC,
	high NUMERIC,
	low NUMERIC,
	close NUMERIC,
	volume NUMERIC,
	PRIMARY KEY (symbol, timestamp)
);
`

// InitSchema creates the tables and indexes if missing. On Postgres it also
// tries to turn market_trades into a TimescaleDB hypertable; a server
// without the extension keeps a plain table.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}

	if s.dialect != DialectPostgres {
		return nil
	}
	const hypertable = `SELECT create_hypertable('market_trades', 'timestamp', if_not_exists => TRUE, migrate_data => TRUE)`
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`); err != nil {
		s.log.Warn("timescaledb extension unavailable, using plain table", "error", err)
		return nil
	}
	if _, err := s.db.ExecContext(ctx, hypertable); err != nil {
		s.log.Warn("failed to create hypertable, using plain table", "error", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// args collects positional query arguments and hands out placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}
