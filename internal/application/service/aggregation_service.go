package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metacoder87/investment-matrix/internal/application/bucket"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

type AggregationOptions struct {
	MinPoints        int
	MaxPoints        int
	DefaultPoints    int
	DefaultRange     time.Duration
	DefaultTimeframe string
	Symbols          port.SymbolMapper
}

func DefaultAggregationOptions() AggregationOptions {
	return AggregationOptions{
		MinPoints:        100,
		MaxPoints:        5000,
		DefaultPoints:    2000,
		DefaultRange:     time.Hour,
		DefaultTimeframe: "1m",
		Symbols:          port.IdentitySymbols,
	}
}

// AggregationService answers series and candle queries from an ordered list
// of bucket sources. The first source that returns at least one bucket wins;
// errors, ErrUnsupported and empty results move on to the next source.
type AggregationService struct {
	sources []port.BucketSource
	opts    AggregationOptions
	logger  *slog.Logger
	now     func() time.Time
}

func NewAggregationService(sources []port.BucketSource, opts AggregationOptions, logger *slog.Logger) *AggregationService {
	def := DefaultAggregationOptions()
	if opts.MinPoints <= 0 {
		opts.MinPoints = def.MinPoints
	}
	if opts.MaxPoints < opts.MinPoints {
		opts.MaxPoints = max(def.MaxPoints, opts.MinPoints)
	}
	if opts.DefaultPoints < opts.MinPoints || opts.DefaultPoints > opts.MaxPoints {
		opts.DefaultPoints = min(max(def.DefaultPoints, opts.MinPoints), opts.MaxPoints)
	}
	if opts.DefaultRange <= 0 {
		opts.DefaultRange = def.DefaultRange
	}
	if opts.DefaultTimeframe == "" {
		opts.DefaultTimeframe = def.DefaultTimeframe
	}
	if opts.Symbols == nil {
		opts.Symbols = def.Symbols
	}
	return &AggregationService{
		sources: sources,
		opts:    opts,
		logger:  logger.With("component", "aggregator"),
		now:     time.Now,
	}
}

type rangeQuery struct {
	exchange  string
	symbol    string
	start     time.Time
	end       time.Time
	maxPoints int
}

func (s *AggregationService) normalize(exchange, symbol string, start, end *time.Time, maxPoints int) (rangeQuery, error) {
	var q rangeQuery

	q.exchange = strings.ToLower(strings.TrimSpace(exchange))
	if q.exchange == "" {
		return q, fmt.Errorf("%w: exchange is required", model.ErrValidation)
	}

	sym, err := model.ParseSymbol(symbol)
	if err != nil {
		return q, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	q.symbol = s.opts.Symbols(q.exchange, sym).Dash()

	q.end = s.now().UTC()
	if end != nil {
		q.end = end.UTC()
	}
	q.start = q.end.Add(-s.opts.DefaultRange)
	if start != nil {
		q.start = start.UTC()
	}
	if q.start.After(q.end) {
		return q, fmt.Errorf("%w: start must be <= end", model.ErrValidation)
	}

	q.maxPoints = maxPoints
	if q.maxPoints == 0 {
		q.maxPoints = s.opts.DefaultPoints
	}
	if q.maxPoints < s.opts.MinPoints || q.maxPoints > s.opts.MaxPoints {
		return q, fmt.Errorf("%w: max_points must be between %d and %d", model.ErrValidation, s.opts.MinPoints, s.opts.MaxPoints)
	}
	return q, nil
}

func (q rangeQuery) seconds() float64 {
	return q.end.Sub(q.start).Seconds()
}

func (q rangeQuery) bucketQuery(width int64) model.BucketQuery {
	return model.BucketQuery{
		Exchange: q.exchange,
		Symbol:   q.symbol,
		Start:    q.start,
		End:      q.end,
		Width:    width,
	}
}

func (s *AggregationService) Series(ctx context.Context, req model.SeriesRequest) (model.SeriesResult, error) {
	q, err := s.normalize(req.Exchange, req.Symbol, req.Start, req.End, req.MaxPoints)
	if err != nil {
		return model.SeriesResult{}, err
	}

	width := bucket.ChooseWidth(q.seconds(), q.maxPoints)
	bq := q.bucketQuery(width)

	points, source, err := firstAnswer(ctx, s, "series", func(src port.BucketSource) ([]model.SeriesPoint, error) {
		return src.Series(ctx, bq)
	})
	if err != nil {
		return model.SeriesResult{}, err
	}

	return model.SeriesResult{
		Exchange:      q.exchange,
		Symbol:        q.symbol,
		Start:         q.start,
		End:           q.end,
		BucketSeconds: width,
		Source:        source,
		Points:        points,
	}, nil
}

func (s *AggregationService) Candles(ctx context.Context, req model.CandleRequest) (model.CandleResult, error) {
	q, err := s.normalize(req.Exchange, req.Symbol, req.Start, req.End, req.MaxPoints)
	if err != nil {
		return model.CandleResult{}, err
	}

	timeframe := strings.ToLower(strings.TrimSpace(req.Timeframe))
	if timeframe == "" {
		timeframe = s.opts.DefaultTimeframe
	}
	requested, err := bucket.ParseTimeframe(timeframe)
	if err != nil {
		return model.CandleResult{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	width := bucket.CandleWidth(requested, q.seconds(), q.maxPoints)
	bq := q.bucketQuery(width)

	candles, source, err := firstAnswer(ctx, s, "candles", func(src port.BucketSource) ([]model.Candle, error) {
		return src.Candles(ctx, bq)
	})
	if err != nil {
		return model.CandleResult{}, err
	}

	return model.CandleResult{
		Exchange:               q.exchange,
		Symbol:                 q.symbol,
		Start:                  q.start,
		End:                    q.end,
		Timeframe:              timeframe,
		RequestedBucketSeconds: requested,
		BucketSeconds:          width,
		Source:                 source,
		Candles:                candles,
	}, nil
}

// firstAnswer walks the sources in order. When every source failed outright
// the last error is returned; when at least one answered with nothing the
// result is an empty list.
func firstAnswer[T any](ctx context.Context, s *AggregationService, kind string, call func(port.BucketSource) ([]T, error)) ([]T, string, error) {
	var lastErr error
	answered := false

	for _, src := range s.sources {
		out, err := call(src)
		switch {
		case errors.Is(err, port.ErrUnsupported):
			s.logger.Debug("bucket source cannot answer", "kind", kind, "source", src.Name(), "reason", err)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = err
			s.logger.Warn("bucket source failed, trying next", "kind", kind, "source", src.Name(), "error", err)
			continue
		}

		answered = true
		if len(out) == 0 {
			continue
		}
		return out, src.Name(), nil
	}

	if !answered && lastErr != nil {
		return nil, "", fmt.Errorf("all %s sources failed: %w", kind, lastErr)
	}
	return []T{}, "", nil
}
