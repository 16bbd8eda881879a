package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "market_trades", cfg.TradeLog.Stream)
	assert.Equal(t, "trade_writers", cfg.TradeLog.Group)
	assert.Equal(t, int64(100_000), cfg.TradeLog.MaxLen)
	assert.Equal(t, 20*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, time.Second, cfg.Writer.Block)
	assert.Equal(t, 2000, cfg.Query.DefaultPoints)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite3
  sqlite_path: /tmp/trades.db
stream:
  exchanges: [binance, kraken]
  core_universe: ["btc/usdt", "ETH-USD", "BTC-USDT"]
  binance_tld: us
redis:
  latest_ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/trades.db", cfg.DatabaseDSN())
	assert.Equal(t, []string{"binance", "kraken"}, cfg.Stream.Exchanges)
	assert.Equal(t, "us", cfg.Stream.BinanceTLD)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	// untouched keys keep their defaults
	assert.Equal(t, 500, cfg.Writer.BatchSize)

	syms, err := cfg.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []model.Symbol{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "USD"}}, syms)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("CORE_UNIVERSE", "SOL-USD, ADA-USD")
	t.Setenv("STREAM_EXCHANGES", "coinbase,synthetic")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.Equal(t, []string{"SOL-USD", "ADA-USD"}, cfg.Stream.CoreUniverse)
	assert.Equal(t, []string{"coinbase", "synthetic"}, cfg.Stream.Exchanges)
	assert.Contains(t, cfg.DatabaseDSN(), "host=db")
	assert.Contains(t, cfg.DatabaseDSN(), "password=secret")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown exchange", "stream:\n  exchanges: [bitstamp]\n"},
		{"bad symbol", "stream:\n  core_universe: [BTCUSD]\n"},
		{"bad duration", "redis:\n  latest_ttl: soon\n"},
		{"negative duration", "writer:\n  block: -1s\n"},
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"points out of range", "query:\n  default_points: 50\n"},
		{"empty universe", "stream:\n  core_universe: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDriverAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"sqlite":     "sqlite3",
		"SQLite3":    "sqlite3",
		"postgresql": "postgres",
		"timescale":  "postgres",
	} {
		t.Run(alias, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "database:\n  driver: "+alias+"\n  sqlite_path: /tmp/a.db\n"))
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Database.Driver)
			if want == "sqlite3" {
				assert.Equal(t, "/tmp/a.db", cfg.DatabaseDSN())
			} else {
				assert.Contains(t, cfg.DatabaseDSN(), "host=")
			}
		})
	}

	t.Setenv("DATABASE_DRIVER", "sqlite")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [port\n"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
