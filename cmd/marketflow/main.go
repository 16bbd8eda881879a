package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/metacoder87/investment-matrix/internal/adapter/cache"
	"github.com/metacoder87/investment-matrix/internal/adapter/storage"
	"github.com/metacoder87/investment-matrix/internal/infrastructure/config"
	"github.com/metacoder87/investment-matrix/internal/infrastructure/logger"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "marketflow",
		Usage:   "stream exchange trades, persist them and serve market data",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "configs/config.yaml",
				EnvVars: []string{"MARKETFLOW_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			streamCommand(),
			writeCommand(),
			serveCommand(),
			migrateCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "marketflow: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	cfg *config.Config
	log *slog.Logger
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).With("command", c.Command.Name)
	log.Info("starting marketflow", "version", version)
	return &deps{cfg: cfg, log: log}, nil
}

func (rt *deps) openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, rt.cfg.Database.Driver, rt.cfg.DatabaseDSN(), rt.log)
	if err != nil {
		return nil, err
	}
	if store.Dialect() == storage.DialectPostgres {
		db := store.DB()
		db.SetMaxOpenConns(rt.cfg.PostgreSQL.MaxOpenConns)
		db.SetMaxIdleConns(rt.cfg.PostgreSQL.MaxIdleConns)
		db.SetConnMaxLifetime(rt.cfg.PostgreSQL.ConnMaxLifetime)
	}
	return store, nil
}

func (rt *deps) openRedis(ctx context.Context) (*redis.Client, error) {
	return cache.Dial(ctx, rt.cfg.RedisAddr(), rt.cfg.Redis.Password, rt.cfg.Redis.DB)
}
