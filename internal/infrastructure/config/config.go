package config

import "time"

type Config struct {
	Server struct {
		Port               int           `yaml:"port"`
		ReadTimeoutStr     string        `yaml:"read_timeout"`
		WriteTimeoutStr    string        `yaml:"write_timeout"`
		ShutdownTimeoutStr string        `yaml:"shutdown_timeout"`
		ReadTimeout        time.Duration `yaml:"-"`
		WriteTimeout       time.Duration `yaml:"-"`
		ShutdownTimeout    time.Duration `yaml:"-"`
	} `yaml:"server"`

	Database struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	PostgreSQL struct {
		Host               string        `yaml:"host"`
		Port               int           `yaml:"port"`
		User               string        `yaml:"user"`
		Password           string        `yaml:"password"`
		Database           string        `yaml:"database"`
		SSLMode            string        `yaml:"sslmode"`
		MaxOpenConns       int           `yaml:"max_open_conns"`
		MaxIdleConns       int           `yaml:"max_idle_conns"`
		ConnMaxLifetimeStr string        `yaml:"conn_max_lifetime"`
		ConnMaxLifetime    time.Duration `yaml:"-"`
	} `yaml:"postgresql"`

	Redis struct {
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTLStr   string        `yaml:"latest_ttl"`
		TTL      time.Duration `yaml:"-"`
	} `yaml:"redis"`

	Stream struct {
		Exchanges             []string      `yaml:"exchanges"`
		CoreUniverse          []string      `yaml:"core_universe"`
		MaxSymbolsPerExchange int           `yaml:"max_symbols_per_exchange"`
		BinanceTLD            string        `yaml:"binance_tld"`
		PingIntervalStr       string        `yaml:"ping_interval"`
		SyntheticIntervalStr  string        `yaml:"synthetic_interval"`
		PingInterval          time.Duration `yaml:"-"`
		SyntheticInterval     time.Duration `yaml:"-"`
	} `yaml:"stream"`

	TradeLog struct {
		Stream string `yaml:"stream"`
		Group  string `yaml:"group"`
		MaxLen int64  `yaml:"max_len"`
	} `yaml:"trade_log"`

	Publisher struct {
		Attempts          int           `yaml:"attempts"`
		AttemptTimeoutStr string        `yaml:"attempt_timeout"`
		AttemptTimeout    time.Duration `yaml:"-"`
	} `yaml:"publisher"`

	Writer struct {
		Consumer        string        `yaml:"consumer"`
		BatchSize       int           `yaml:"batch_size"`
		BlockStr        string        `yaml:"block"`
		RetryBackoffStr string        `yaml:"retry_backoff"`
		Block           time.Duration `yaml:"-"`
		RetryBackoff    time.Duration `yaml:"-"`
	} `yaml:"writer"`

	Query struct {
		MinPoints       int           `yaml:"min_points"`
		MaxPoints       int           `yaml:"max_points"`
		DefaultPoints   int           `yaml:"default_points"`
		DefaultRangeStr string        `yaml:"default_range"`
		DefaultRange    time.Duration `yaml:"-"`
	} `yaml:"query"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given. Loaded files
// are decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	var c Config

	c.Server.Port = 8080
	c.Server.ReadTimeoutStr = "10s"
	c.Server.WriteTimeoutStr = "30s"
	c.Server.ShutdownTimeoutStr = "15s"

	c.Database.Driver = "postgres"
	c.Database.SQLitePath = "marketflow.db"

	c.PostgreSQL.Host = "localhost"
	c.PostgreSQL.Port = 5432
	c.PostgreSQL.User = "marketflow"
	c.PostgreSQL.Database = "marketflow"
	c.PostgreSQL.SSLMode = "disable"
	c.PostgreSQL.MaxOpenConns = 10
	c.PostgreSQL.MaxIdleConns = 5
	c.PostgreSQL.ConnMaxLifetimeStr = "30m"

	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Redis.TTLStr = "1h"

	c.Stream.Exchanges = []string{"coinbase"}
	c.Stream.CoreUniverse = []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	c.Stream.MaxSymbolsPerExchange = 50
	c.Stream.BinanceTLD = "com"
	c.Stream.PingIntervalStr = "20s"
	c.Stream.SyntheticIntervalStr = "500ms"

	c.TradeLog.Stream = "market_trades"
	c.TradeLog.Group = "trade_writers"
	c.TradeLog.MaxLen = 100_000

	c.Publisher.Attempts = 3
	c.Publisher.AttemptTimeoutStr = "2s"

	c.Writer.Consumer = "writer-1"
	c.Writer.BatchSize = 500
	c.Writer.BlockStr = "1s"
	c.Writer.RetryBackoffStr = "1s"

	c.Query.MinPoints = 100
	c.Query.MaxPoints = 5000
	c.Query.DefaultPoints = 2000
	c.Query.DefaultRangeStr = "1h"

	c.Logging.Level = "info"
	c.Logging.Format = "text"

	return &c
}
