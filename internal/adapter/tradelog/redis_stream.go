package tradelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

const (
	DefaultStream = "market_trades"
	DefaultGroup  = "trade_writers"
	DefaultMaxLen = 100_000
)

// RedisStream is the durable trade log on a Redis stream. Appends trim the
// stream approximately to maxLen; reads go through one consumer group.
type RedisStream struct {
	client *redis.Client
	stream string
	group  string
	maxLen int64
}

func NewRedisStream(client *redis.Client, stream, group string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisStream{
		client: client,
		stream: stream,
		group:  group,
		maxLen: maxLen,
	}
}

func (s *RedisStream) Stream() string { return s.stream }

func (s *RedisStream) Group() string { return s.group }

func (s *RedisStream) Append(ctx context.Context, event model.TradeEvent) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: model.EncodeLogFields(event),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append trade to %s: %w", s.stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group (and the stream) positioned at the
// end of the log. An existing group is left untouched.
func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

func (s *RedisStream) Read(ctx context.Context, consumer string, count int, block time.Duration, pending bool) ([]model.LogEntry, error) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    int64(count),
		Block:    block,
	}
	if pending {
		args.Streams[1] = "0"
		args.Block = -1
	}

	res, err := s.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from %s: %w", s.stream, err)
	}

	var out []model.LogEntry
	for _, st := range res {
		for _, msg := range st.Messages {
			out = append(out, model.LogEntry{ID: msg.ID, Fields: stringFields(msg.Values)})
		}
	}
	return out, nil
}

func (s *RedisStream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d entries on %s: %w", len(ids), s.stream, err)
	}
	return nil
}

func stringFields(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
