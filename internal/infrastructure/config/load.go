package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/metacoder87/investment-matrix/internal/adapter/storage"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

var ErrInvalidConfig = errors.New("invalid config")

var knownExchanges = map[string]bool{
	"binance":   true,
	"kraken":    true,
	"coinbase":  true,
	"synthetic": true,
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if dialect, err := storage.ParseDialect(cfg.Database.Driver); err == nil {
		cfg.Database.Driver = string(dialect)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseDurations() error {
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeoutStr, &c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeoutStr, &c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeoutStr, &c.Server.ShutdownTimeout},
		{"postgresql.conn_max_lifetime", c.PostgreSQL.ConnMaxLifetimeStr, &c.PostgreSQL.ConnMaxLifetime},
		{"redis.latest_ttl", c.Redis.TTLStr, &c.Redis.TTL},
		{"stream.ping_interval", c.Stream.PingIntervalStr, &c.Stream.PingInterval},
		{"stream.synthetic_interval", c.Stream.SyntheticIntervalStr, &c.Stream.SyntheticInterval},
		{"publisher.attempt_timeout", c.Publisher.AttemptTimeoutStr, &c.Publisher.AttemptTimeout},
		{"writer.block", c.Writer.BlockStr, &c.Writer.Block},
		{"writer.retry_backoff", c.Writer.RetryBackoffStr, &c.Writer.RetryBackoff},
		{"query.default_range", c.Query.DefaultRangeStr, &c.Query.DefaultRange},
	} {
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, d.name)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	dialect, err := storage.ParseDialect(c.Database.Driver)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: database.driver: %w", ErrInvalidConfig, err))
	}
	check(dialect != storage.DialectSQLite || c.Database.SQLitePath != "", "database.sqlite_path is required for sqlite3")

	for _, name := range c.Stream.Exchanges {
		check(knownExchanges[strings.ToLower(name)], "stream.exchanges: unknown exchange %q", name)
	}
	check(len(c.Stream.CoreUniverse) > 0, "stream.core_universe is empty")
	if _, err := c.Symbols(); err != nil {
		errs = append(errs, fmt.Errorf("%w: stream.core_universe: %w", ErrInvalidConfig, err))
	}
	check(c.Stream.MaxSymbolsPerExchange > 0, "stream.max_symbols_per_exchange must be positive")

	check(c.TradeLog.MaxLen > 0, "trade_log.max_len must be positive")
	check(c.Publisher.Attempts > 0, "publisher.attempts must be positive")
	check(c.Writer.BatchSize > 0, "writer.batch_size must be positive")
	check(c.Writer.Consumer != "", "writer.consumer is required")
	check(c.Query.MinPoints > 0 && c.Query.MinPoints <= c.Query.MaxPoints,
		"query.min_points %d / max_points %d", c.Query.MinPoints, c.Query.MaxPoints)
	check(c.Query.DefaultPoints >= c.Query.MinPoints && c.Query.DefaultPoints <= c.Query.MaxPoints,
		"query.default_points %d outside [%d, %d]", c.Query.DefaultPoints, c.Query.MinPoints, c.Query.MaxPoints)

	return errors.Join(errs...)
}

// Symbols parses the core universe, de-duplicated in order.
func (c *Config) Symbols() ([]model.Symbol, error) {
	seen := make(map[model.Symbol]bool, len(c.Stream.CoreUniverse))
	var out []model.Symbol
	for _, raw := range c.Stream.CoreUniverse {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		sym, err := model.ParseSymbol(raw)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}

func applyEnvOverrides(cfg *Config) {
	// PostgreSQL
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.PostgreSQL.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.PostgreSQL.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.PostgreSQL.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.PostgreSQL.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.PostgreSQL.Database = v
	}

	// Database backend
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	// Streaming
	if v := os.Getenv("CORE_UNIVERSE"); v != "" {
		cfg.Stream.CoreUniverse = splitList(v)
	}
	if v := os.Getenv("STREAM_EXCHANGES"); v != "" {
		cfg.Stream.Exchanges = splitList(v)
	}
	if v := os.Getenv("STREAM_MAX_SYMBOLS_PER_EXCHANGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.MaxSymbolsPerExchange = n
		}
	}
	if v := os.Getenv("BINANCE_TLD"); v != "" {
		cfg.Stream.BinanceTLD = v
	}

	// Writer
	if v := os.Getenv("WRITER_CONSUMER"); v != "" {
		cfg.Writer.Consumer = v
	}

	// Server
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host, c.PostgreSQL.Port, c.PostgreSQL.User,
		c.PostgreSQL.Password, c.PostgreSQL.Database, c.PostgreSQL.SSLMode,
	)
}

// DatabaseDSN returns the DSN for the configured driver.
func (c *Config) DatabaseDSN() string {
	if dialect, _ := storage.ParseDialect(c.Database.Driver); dialect == storage.DialectSQLite {
		return c.Database.SQLitePath
	}
	return c.PostgresDSN()
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
