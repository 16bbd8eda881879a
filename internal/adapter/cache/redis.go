package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

const DefaultTTL = time.Hour

// Dial opens a client and checks the server answers.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisAdapter keeps the latest trade per (exchange, symbol) under
// latest:{exchange}:{symbol} and the legacy latest:{symbol}, and announces
// each trade on the matching ticks: channels.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisAdapter{
		client: client,
		ttl:    ttl,
	}
}

func LatestKey(exchange, symbol string) string {
	if exchange == "" {
		return "latest:" + symbol
	}
	return fmt.Sprintf("latest:%s:%s", exchange, symbol)
}

func TicksChannel(exchange, symbol string) string {
	if exchange == "" {
		return "ticks:" + symbol
	}
	return fmt.Sprintf("ticks:%s:%s", exchange, symbol)
}

func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// SetLatest writes both cache keys and publishes on both channels in one
// pipeline round trip.
func (a *RedisAdapter) SetLatest(ctx context.Context, trade model.LatestTrade) error {
	exchange := strings.ToLower(trade.Exchange)
	symbol := strings.ToUpper(trade.Symbol)
	trade.Exchange, trade.Symbol = exchange, symbol

	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal latest trade: %w", err)
	}

	pipe := a.client.Pipeline()
	pipe.Set(ctx, LatestKey(exchange, symbol), data, a.ttl)
	pipe.Set(ctx, LatestKey("", symbol), data, a.ttl)
	pipe.Publish(ctx, TicksChannel(exchange, symbol), data)
	pipe.Publish(ctx, TicksChannel("", symbol), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set latest trade in redis: %w", err)
	}
	return nil
}

// GetLatest returns nil without error when the key is absent or expired. An
// empty exchange reads the legacy per-symbol key.
func (a *RedisAdapter) GetLatest(ctx context.Context, exchange, symbol string) (*model.LatestTrade, error) {
	key := LatestKey(strings.ToLower(exchange), strings.ToUpper(symbol))
	data, err := a.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest trade from redis: %w", err)
	}

	var trade model.LatestTrade
	if err := json.Unmarshal(data, &trade); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest trade %s: %w", key, err)
	}
	return &trade, nil
}

func (a *RedisAdapter) Close() error {
	return a.client.Close()
}
