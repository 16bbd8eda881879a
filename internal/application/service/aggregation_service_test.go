package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func usdtMapper(exchange string, sym model.Symbol) model.Symbol {
	if exchange == "binance" && sym.Quote == "USD" {
		sym.Quote = "USDT"
	}
	return sym
}

func newAggregator(sources ...port.BucketSource) *AggregationService {
	opts := DefaultAggregationOptions()
	opts.Symbols = usdtMapper
	s := NewAggregationService(sources, opts, discardLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func ptr(t time.Time) *time.Time { return &t }

func TestSeriesDefaults(t *testing.T) {
	src := &fakeSource{name: "native", series: []model.SeriesPoint{{BucketStart: fixedNow, AvgPrice: 1, TradeCount: 1}}}
	s := newAggregator(src)

	res, err := s.Series(context.Background(), model.SeriesRequest{Exchange: "Binance", Symbol: "btc/usd"})
	require.NoError(t, err)

	assert.Equal(t, "binance", res.Exchange)
	assert.Equal(t, "BTC-USDT", res.Symbol)
	assert.Equal(t, fixedNow, res.End)
	assert.Equal(t, fixedNow.Add(-time.Hour), res.Start)
	assert.EqualValues(t, 2, res.BucketSeconds)
	assert.Equal(t, "native", res.Source)
	assert.Len(t, res.Points, 1)

	assert.Equal(t, model.BucketQuery{
		Exchange: "binance", Symbol: "BTC-USDT", Start: fixedNow.Add(-time.Hour), End: fixedNow, Width: 2,
	}, src.last)
}

func TestSeriesWidthFollowsMaxPoints(t *testing.T) {
	src := &fakeSource{name: "native"}
	s := newAggregator(src)

	res, err := s.Series(context.Background(), model.SeriesRequest{
		Exchange:  "coinbase",
		Symbol:    "BTC-USD",
		Start:     ptr(fixedNow.Add(-24 * time.Hour)),
		End:       ptr(fixedNow),
		MaxPoints: 100,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 900, res.BucketSeconds)
	assert.NotNil(t, res.Points)
	assert.Empty(t, res.Points)
	assert.Empty(t, res.Source)
}

func TestValidation(t *testing.T) {
	s := newAggregator(&fakeSource{name: "native"})
	ctx := context.Background()

	for name, req := range map[string]model.SeriesRequest{
		"start after end": {Exchange: "coinbase", Symbol: "BTC-USD", Start: ptr(fixedNow), End: ptr(fixedNow.Add(-time.Second))},
		"too few points":  {Exchange: "coinbase", Symbol: "BTC-USD", MaxPoints: 99},
		"too many points": {Exchange: "coinbase", Symbol: "BTC-USD", MaxPoints: 5001},
		"bad symbol":      {Exchange: "coinbase", Symbol: "BTCUSD"},
		"no exchange":     {Symbol: "BTC-USD"},
	} {
		_, err := s.Series(ctx, req)
		assert.ErrorIs(t, err, model.ErrValidation, name)
	}

	_, err := s.Candles(ctx, model.CandleRequest{Exchange: "coinbase", Symbol: "BTC-USD", Timeframe: "5x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = s.Series(ctx, model.SeriesRequest{Exchange: "coinbase", Symbol: "BTC-USD", Start: ptr(fixedNow), End: ptr(fixedNow)})
	assert.NoError(t, err)
}

func TestCandlesCoarsenTimeframe(t *testing.T) {
	src := &fakeSource{name: "native", candles: []model.Candle{{BucketStart: fixedNow, Open: 1, High: 1, Low: 1, Close: 1, TradeCount: 1}}}
	s := newAggregator(src)

	res, err := s.Candles(context.Background(), model.CandleRequest{
		Exchange:  "coinbase",
		Symbol:    "BTC-USD",
		Start:     ptr(fixedNow.Add(-24 * time.Hour)),
		End:       ptr(fixedNow),
		Timeframe: "1s",
		MaxPoints: 100,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RequestedBucketSeconds)
	assert.EqualValues(t, 900, res.BucketSeconds)
	assert.Equal(t, "1s", res.Timeframe)

	res, err = s.Candles(context.Background(), model.CandleRequest{Exchange: "coinbase", Symbol: "BTC-USD", Timeframe: "15M"})
	require.NoError(t, err)
	assert.EqualValues(t, 900, res.RequestedBucketSeconds)
	assert.EqualValues(t, 900, res.BucketSeconds)

	res, err = s.Candles(context.Background(), model.CandleRequest{Exchange: "coinbase", Symbol: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, "1m", res.Timeframe)
	assert.EqualValues(t, 60, res.BucketSeconds)
}

func TestSourcesTriedInOrder(t *testing.T) {
	native := &fakeSource{name: "native", err: errors.New("relation does not exist")}
	fallback := &fakeSource{name: "fallback"}
	historical := &fakeSource{name: "historical", candles: []model.Candle{{BucketStart: fixedNow, Close: 5, TradeCount: 1}}}
	s := newAggregator(native, fallback, historical)

	res, err := s.Candles(context.Background(), model.CandleRequest{Exchange: "coinbase", Symbol: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, "historical", res.Source)
	assert.Len(t, res.Candles, 1)
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFirstAnsweringSourceWins(t *testing.T) {
	native := &fakeSource{name: "native", err: port.ErrUnsupported}
	fallback := &fakeSource{name: "fallback", series: []model.SeriesPoint{{BucketStart: fixedNow, TradeCount: 1}}}
	historical := &fakeSource{name: "historical"}
	s := newAggregator(native, fallback, historical)

	res, err := s.Series(context.Background(), model.SeriesRequest{Exchange: "coinbase", Symbol: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Source)
	assert.Zero(t, historical.calls)
}

func TestAllSourcesFailed(t *testing.T) {
	s := newAggregator(
		&fakeSource{name: "native", err: errors.New("timeout")},
		&fakeSource{name: "fallback", err: errors.New("timeout")},
		&fakeSource{name: "historical", err: port.ErrUnsupported},
	)

	_, err := s.Series(context.Background(), model.SeriesRequest{Exchange: "coinbase", Symbol: "BTC-USD"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrValidation)
}

func TestCancelledQueryStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fallback := &fakeSource{name: "fallback"}
	s := newAggregator(&fakeSource{name: "native", err: context.Canceled}, fallback)

	_, err := s.Series(ctx, model.SeriesRequest{Exchange: "coinbase", Symbol: "BTC-USD"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.calls)
}
