package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/metacoder87/investment-matrix/internal/adapter/cache"
	"github.com/metacoder87/investment-matrix/internal/adapter/exchange"
	"github.com/metacoder87/investment-matrix/internal/adapter/generator"
	"github.com/metacoder87/investment-matrix/internal/adapter/handler"
	"github.com/metacoder87/investment-matrix/internal/adapter/storage"
	"github.com/metacoder87/investment-matrix/internal/adapter/tradelog"
	"github.com/metacoder87/investment-matrix/internal/application/service"
	"github.com/metacoder87/investment-matrix/internal/application/usecase"
	"github.com/metacoder87/investment-matrix/internal/concurrency/worker"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
	"github.com/metacoder87/investment-matrix/internal/infrastructure/config"
	"github.com/metacoder87/investment-matrix/internal/infrastructure/server"
)

const statsInterval = time.Minute

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "connect to the configured exchanges and publish trades",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "exchange", Usage: "exchanges to stream (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			if names := c.StringSlice("exchange"); len(names) > 0 {
				rt.cfg.Stream.Exchanges = names
				if err := rt.cfg.Validate(); err != nil {
					return err
				}
			}
			return runStream(c.Context, rt)
		},
	}
}

func runStream(ctx context.Context, rt *deps) error {
	symbols, err := rt.cfg.Symbols()
	if err != nil {
		return err
	}
	if len(rt.cfg.Stream.Exchanges) == 0 {
		return fmt.Errorf("no exchanges configured")
	}

	client, err := rt.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	latest := cache.NewRedisAdapter(client, rt.cfg.Redis.TTL)
	tradeLog := tradelog.NewRedisStream(client, rt.cfg.TradeLog.Stream, rt.cfg.TradeLog.Group, rt.cfg.TradeLog.MaxLen)

	pubOpts := service.DefaultPublisherOptions()
	pubOpts.Attempts = rt.cfg.Publisher.Attempts
	pubOpts.AttemptTimeout = rt.cfg.Publisher.AttemptTimeout
	publisher := service.NewPublisher(latest, tradeLog, pubOpts, rt.log)

	feeds, err := buildFeeds(rt, symbols)
	if err != nil {
		return err
	}

	group := worker.NewGroup(rt.log)
	for _, feed := range feeds {
		group.Go(ctx, "feed:"+feed.Name(), func(ctx context.Context) error {
			return feed.Run(ctx, publisher)
		})
	}
	group.Go(ctx, "stats", func(ctx context.Context) error {
		return every(ctx, statsInterval, func() {
			published, failed := publisher.Stats()
			rt.log.Info("publisher stats", "published", published, "failed", failed)
		})
	})

	rt.log.Info("streaming started", "feeds", len(feeds), "symbols", len(symbols))
	return group.Wait()
}

func buildFeeds(rt *deps, symbols []model.Symbol) ([]port.TradeFeed, error) {
	symbols = symbols[:min(len(symbols), rt.cfg.Stream.MaxSymbolsPerExchange)]

	streamOpts := exchange.DefaultStreamerOptions()
	streamOpts.PingInterval = rt.cfg.Stream.PingInterval

	var feeds []port.TradeFeed
	for _, name := range rt.cfg.Stream.Exchanges {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == generator.Name {
			feeds = append(feeds, generator.NewSynthetic(symbols, rt.cfg.Stream.SyntheticInterval, rt.log))
			continue
		}
		strategy, err := exchange.New(name, symbols, exchange.Options{BinanceTLD: rt.cfg.Stream.BinanceTLD})
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, exchange.NewStreamer(strategy, streamOpts, rt.log))
	}
	return feeds, nil
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "consume the trade log and persist trades to the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "consumer", Usage: "consumer name within the writer group (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			if v := c.String("consumer"); v != "" {
				rt.cfg.Writer.Consumer = v
			}
			return runWriter(c.Context, rt)
		},
	}
}

func runWriter(ctx context.Context, rt *deps) error {
	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	client, err := rt.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	tradeLog := tradelog.NewRedisStream(client, rt.cfg.TradeLog.Stream, rt.cfg.TradeLog.Group, rt.cfg.TradeLog.MaxLen)

	opts := service.DefaultWriterOptions()
	opts.Consumer = rt.cfg.Writer.Consumer
	opts.BatchSize = rt.cfg.Writer.BatchSize
	opts.Block = rt.cfg.Writer.Block
	opts.RetryBackoff = rt.cfg.Writer.RetryBackoff
	writer := service.NewWriter(tradeLog, store, opts, rt.log)

	group := worker.NewGroup(rt.log)
	group.Go(ctx, "writer", writer.Run)
	group.Go(ctx, "stats", func(ctx context.Context) error {
		return every(ctx, statsInterval, func() {
			s := writer.Stats()
			rt.log.Info("writer stats", "persisted", s.Persisted, "skipped", s.Skipped, "acked", s.Acked, "failures", s.Failures)
		})
	})
	return group.Wait()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the market data HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			if p := c.Int("port"); p != 0 {
				rt.cfg.Server.Port = p
			}
			return runServer(c.Context, rt)
		},
	}
}

func runServer(ctx context.Context, rt *deps) error {
	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := rt.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	latest := cache.NewRedisAdapter(client, rt.cfg.Redis.TTL)
	market := usecase.NewMarketUseCase(latest, store, exchange.StorageSymbol)
	aggregation := service.NewAggregationService(
		[]port.BucketSource{
			storage.NewNativeSource(store),
			storage.NewFallbackSource(store),
			storage.NewHistoricalSource(store),
		},
		aggregationOptions(rt.cfg),
		rt.log,
	)

	router := handler.NewRouter(
		handler.NewMarketHandler(market, aggregation, rt.log),
		handler.NewHealthHandler(store, latest, rt.log),
	)

	srv := server.NewServer(rt.cfg.Server.Port, router, server.Options{
		ReadTimeout:     rt.cfg.Server.ReadTimeout,
		WriteTimeout:    rt.cfg.Server.WriteTimeout,
		ShutdownTimeout: rt.cfg.Server.ShutdownTimeout,
	}, rt.log)
	return srv.Run(ctx)
}

func aggregationOptions(cfg *config.Config) service.AggregationOptions {
	opts := service.DefaultAggregationOptions()
	opts.MinPoints = cfg.Query.MinPoints
	opts.MaxPoints = cfg.Query.MaxPoints
	opts.DefaultPoints = cfg.Query.DefaultPoints
	opts.DefaultRange = cfg.Query.DefaultRange
	opts.Symbols = exchange.StorageSymbol
	return opts
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create the database schema",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			store, err := rt.openStore(c.Context)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.InitSchema(c.Context); err != nil {
				return err
			}
			rt.log.Info("schema ready", "dialect", string(store.Dialect()))
			return nil
		},
	}
}

// every calls fn on each tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
