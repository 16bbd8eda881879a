package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacoder87/investment-matrix/internal/adapter/cache"
	"github.com/metacoder87/investment-matrix/internal/adapter/storage"
	"github.com/metacoder87/investment-matrix/internal/adapter/tradelog"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

type pipeline struct {
	client    *redis.Client
	stream    *tradelog.RedisStream
	store     *storage.Store
	publisher *Publisher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := storage.Open(ctx, "sqlite3", ":memory:", discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(ctx))
	t.Cleanup(func() { _ = store.Close() })

	stream := tradelog.NewRedisStream(client, "", "", 0)
	require.NoError(t, stream.EnsureGroup(ctx))

	return &pipeline{
		client:    client,
		stream:    stream,
		store:     store,
		publisher: NewPublisher(cache.NewRedisAdapter(client, time.Hour), stream, fastPublisherOptions(), discardLogger()),
	}
}

func testWriterOptions() WriterOptions {
	opts := DefaultWriterOptions()
	opts.Block = 20 * time.Millisecond
	return opts
}

func startWriter(t *testing.T, w *Writer) (stop func()) {
	t.Helper()
	w.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("writer did not stop")
		}
	}
}

func coverage(t *testing.T, p *pipeline) int64 {
	cov, err := p.store.Coverage(context.Background(), "coinbase", "BTC-USD")
	require.NoError(t, err)
	return cov.Trades
}

func TestWriterPersistsPublishedTrades(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	for _, price := range []string{"100", "100.5", "101"} {
		require.NoError(t, p.publisher.Publish(ctx, sampleEvent(price)))
	}

	w := NewWriter(p.stream, p.store, testWriterOptions(), discardLogger())
	stop := startWriter(t, w)

	assert.Eventually(t, func() bool { return w.Stats().Acked == 3 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.EqualValues(t, 3, coverage(t, p))
	trades, err := p.store.RecentTrades(ctx, model.TradeQuery{Exchange: "coinbase", Symbol: "BTC-USD", Limit: 10})
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "100.5", trades[1].Price.String())
	require.NotNil(t, trades[1].Side)
	assert.Equal(t, "buy", *trades[1].Side)

	pending, err := p.stream.Read(ctx, "writer-1", 10, 0, true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWriterSkipsAndAcksMalformedEntries(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("100")))
	require.NoError(t, p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "market_trades",
		Values: map[string]any{"exchange": "coinbase", "symbol": "BTC-USD", "ts": "not-a-time", "price": "1", "amount": "1"},
	}).Err())
	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("101")))

	w := NewWriter(p.stream, p.store, testWriterOptions(), discardLogger())
	stop := startWriter(t, w)

	assert.Eventually(t, func() bool { return w.Stats().Acked == 3 }, 5*time.Second, 10*time.Millisecond)
	stop()

	st := w.Stats()
	assert.EqualValues(t, 2, st.Persisted)
	assert.EqualValues(t, 1, st.Skipped)
	assert.EqualValues(t, 2, coverage(t, p))
}

func TestWriterRedeliversAfterCrashBeforeAck(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("100")))
	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("101")))

	// A previous writer took delivery and died before acknowledging.
	delivered, err := p.stream.Read(ctx, "writer-1", 10, 20*time.Millisecond, false)
	require.NoError(t, err)
	require.Len(t, delivered, 2)

	w := NewWriter(p.stream, p.store, testWriterOptions(), discardLogger())
	stop := startWriter(t, w)

	assert.Eventually(t, func() bool { return w.Stats().Acked == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.EqualValues(t, 2, coverage(t, p))
}

func TestWriterRetriesFailedInsertWithoutAck(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("100")))
	require.NoError(t, p.publisher.Publish(ctx, sampleEvent("101")))

	flaky := &flakyStore{TradeStore: p.store, failures: 2}
	w := NewWriter(p.stream, flaky, testWriterOptions(), discardLogger())
	stop := startWriter(t, w)

	assert.Eventually(t, func() bool { return w.Stats().Acked == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	st := w.Stats()
	assert.EqualValues(t, 2, st.Failures)
	assert.EqualValues(t, 2, st.Persisted)
	assert.Equal(t, 3, flaky.attempts)
	assert.EqualValues(t, 2, coverage(t, p))
}

func TestWriterBackoff(t *testing.T) {
	w := NewWriter(nil, nil, WriterOptions{RetryBackoff: time.Second, MaxBackoff: 5 * time.Second}, discardLogger())

	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 4*time.Second, w.backoff(3))
	assert.Equal(t, 5*time.Second, w.backoff(4))
	assert.Equal(t, 5*time.Second, w.backoff(50))
}
