package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

type WriterOptions struct {
	Consumer     string
	BatchSize    int
	Block        time.Duration
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	FlushTimeout time.Duration
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Consumer:     "writer-1",
		BatchSize:    500,
		Block:        time.Second,
		RetryBackoff: time.Second,
		MaxBackoff:   30 * time.Second,
		FlushTimeout: 30 * time.Second,
	}
}

type WriterStats struct {
	Persisted int64
	Skipped   int64
	Acked     int64
	Failures  int64
}

// Writer moves trades from the durable log into the store. Entries are
// acknowledged only after the rows they produced are committed, so a crash
// between the two causes redelivery rather than loss.
type Writer struct {
	tradeLog port.TradeLogConsumer
	store    port.TradeStore
	opts     WriterOptions
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	persisted atomic.Int64
	skipped   atomic.Int64
	acked     atomic.Int64
	failures  atomic.Int64
}

func NewWriter(tradeLog port.TradeLogConsumer, store port.TradeStore, opts WriterOptions, logger *slog.Logger) *Writer {
	def := DefaultWriterOptions()
	if opts.Consumer == "" {
		opts.Consumer = def.Consumer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Block <= 0 {
		opts.Block = def.Block
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.MaxBackoff < opts.RetryBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.RetryBackoff)
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = def.FlushTimeout
	}
	return &Writer{
		tradeLog: tradeLog,
		store:    store,
		opts:     opts,
		logger:   logger.With("component", "writer", "consumer", opts.Consumer),
		sleep:    sleepCtx,
	}
}

func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Persisted: w.persisted.Load(),
		Skipped:   w.skipped.Load(),
		Acked:     w.acked.Load(),
		Failures:  w.failures.Load(),
	}
}

// Run consumes until ctx is cancelled. It starts by draining entries already
// delivered to this consumer and never acknowledged, then follows new ones.
func (w *Writer) Run(ctx context.Context) error {
	if err := w.ensureGroup(ctx); err != nil {
		return err
	}
	w.logger.Info("log writer started", "batch", w.opts.BatchSize)

	pending := true
	consecutive := 0
	for ctx.Err() == nil {
		entries, err := w.tradeLog.Read(ctx, w.opts.Consumer, w.opts.BatchSize, w.opts.Block, pending)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Warn("failed to read trade log", "error", err)
			if err := w.sleep(ctx, w.opts.RetryBackoff); err != nil {
				break
			}
			continue
		}

		if len(entries) == 0 {
			if pending {
				w.logger.Debug("pending entries drained")
				pending = false
			}
			continue
		}

		if err := w.flush(ctx, entries); err != nil {
			consecutive++
			w.failures.Add(1)
			wait := w.backoff(consecutive)
			w.logger.Error("failed to persist batch, will retry",
				"error", err,
				"entries", len(entries),
				"consecutive_failures", consecutive,
				"retry_in", wait,
			)
			pending = true
			if err := w.sleep(ctx, wait); err != nil {
				break
			}
			continue
		}
		consecutive = 0
	}

	st := w.Stats()
	w.logger.Info("log writer stopped", "persisted", st.Persisted, "skipped", st.Skipped, "acked", st.Acked, "failures", st.Failures)
	return ctx.Err()
}

func (w *Writer) ensureGroup(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := w.tradeLog.EnsureGroup(ctx)
		if err == nil {
			return nil
		}
		wait := w.backoff(attempt)
		w.logger.Warn("failed to create consumer group", "error", err, "retry_in", wait)
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// flush decodes, inserts and acknowledges one batch. A batch in flight is
// finished even if ctx is cancelled meanwhile.
func (w *Writer) flush(ctx context.Context, entries []model.LogEntry) error {
	rows := make([]model.PersistedTrade, 0, len(entries))
	ids := make([]string, 0, len(entries))
	var skipped int64

	for _, e := range entries {
		ids = append(ids, e.ID)
		row, err := model.DecodeLogFields(e.Fields)
		if err != nil {
			skipped++
			w.logger.Warn("skipping malformed log entry", "id", e.ID, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.FlushTimeout)
	defer cancel()

	if len(rows) > 0 {
		if err := w.store.InsertTrades(flushCtx, rows); err != nil {
			return err
		}
		w.persisted.Add(int64(len(rows)))
	}
	w.skipped.Add(skipped)

	if err := w.tradeLog.Ack(flushCtx, ids...); err != nil {
		return fmt.Errorf("rows committed but ack failed: %w", err)
	}
	w.acked.Add(int64(len(ids)))

	w.logger.Debug("batch persisted", "rows", len(rows), "skipped", skipped)
	return nil
}

func (w *Writer) backoff(consecutive int) time.Duration {
	wait := w.opts.RetryBackoff
	for i := 1; i < consecutive && wait < w.opts.MaxBackoff; i++ {
		wait *= 2
	}
	return min(wait, w.opts.MaxBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
