package bucket

import (
	"sort"
	"time"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

type seriesAcc struct {
	sum    float64
	volume float64
	count  int64
}

// SeriesFolder accumulates trades into series buckets. Trades may arrive in
// any order; only the mean price, volume sum and count are kept.
type SeriesFolder struct {
	width   int64
	buckets map[int64]*seriesAcc
}

func NewSeriesFolder(width int64) *SeriesFolder {
	return &SeriesFolder{width: width, buckets: make(map[int64]*seriesAcc)}
}

func (f *SeriesFolder) Add(ts time.Time, price, amount float64) {
	k := Key(ts, f.width)
	acc, ok := f.buckets[k]
	if !ok {
		acc = &seriesAcc{}
		f.buckets[k] = acc
	}
	acc.sum += price
	acc.volume += amount
	acc.count++
}

// Points returns the non-empty buckets in ascending time order.
func (f *SeriesFolder) Points() []model.SeriesPoint {
	keys := sortedKeys(f.buckets)
	out := make([]model.SeriesPoint, 0, len(keys))
	for _, k := range keys {
		acc := f.buckets[k]
		if acc.count == 0 {
			continue
		}
		out = append(out, model.SeriesPoint{
			BucketStart: time.Unix(k, 0).UTC(),
			AvgPrice:    acc.sum / float64(acc.count),
			Volume:      acc.volume,
			TradeCount:  acc.count,
		})
	}
	return out
}

type candleAcc struct {
	model.Candle
	firstTS time.Time
	lastTS  time.Time
}

// CandleFolder accumulates trades into OHLCV buckets. Open and close follow
// trade time; among trades with the same time the earlier Add wins for open
// and the later Add wins for close, so feeding rows ordered by (time, id)
// gives a deterministic result.
type CandleFolder struct {
	width   int64
	buckets map[int64]*candleAcc
}

func NewCandleFolder(width int64) *CandleFolder {
	return &CandleFolder{width: width, buckets: make(map[int64]*candleAcc)}
}

func (f *CandleFolder) Add(ts time.Time, price, amount float64) {
	f.add(ts, price, price, price, price, amount, 1)
}

// AddBar merges an already aggregated bar (e.g. a historical OHLCV row)
// stamped at ts.
func (f *CandleFolder) AddBar(ts time.Time, open, high, low, close, volume float64) {
	f.add(ts, open, high, low, close, volume, 1)
}

func (f *CandleFolder) add(ts time.Time, open, high, low, close, volume float64, count int64) {
	k := Key(ts, f.width)
	acc, ok := f.buckets[k]
	if !ok {
		f.buckets[k] = &candleAcc{
			Candle: model.Candle{
				BucketStart: time.Unix(k, 0).UTC(),
				Open:        open,
				High:        high,
				Low:         low,
				Close:       close,
				Volume:      volume,
				TradeCount:  count,
			},
			firstTS: ts,
			lastTS:  ts,
		}
		return
	}

	if ts.Before(acc.firstTS) {
		acc.Open = open
		acc.firstTS = ts
	}
	if !ts.Before(acc.lastTS) {
		acc.Close = close
		acc.lastTS = ts
	}
	acc.High = max(acc.High, high)
	acc.Low = min(acc.Low, low)
	acc.Volume += volume
	acc.TradeCount += count
}

// Candles returns the non-empty buckets in ascending time order.
func (f *CandleFolder) Candles() []model.Candle {
	keys := sortedKeys(f.buckets)
	out := make([]model.Candle, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.buckets[k].Candle)
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
