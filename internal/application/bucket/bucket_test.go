package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseWidth(t *testing.T) {
	tests := []struct {
		name      string
		rangeSecs float64
		maxPoints int
		want      int64
	}{
		{"ten seconds at 100 points", 10, 100, 1},
		{"one hour at 2000 points", 3600, 2000, 2},
		{"one hour at 100 points", 3600, 100, 60},
		{"exact ladder hit", 30000, 100, 300},
		{"one day at 100 points", 86400, 100, 900},
		{"a year is capped", 365 * 86400, 100, 86400},
		{"zero points treated as one", 5, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseWidth(tt.rangeSecs, tt.maxPoints))
		})
	}
}

func TestCandleWidth(t *testing.T) {
	// 1m requested over an hour with plenty of points: keep 1m.
	assert.Equal(t, int64(60), CandleWidth(60, 3600, 2000))
	// 1s requested over a day at 100 points: coarsened to 15m.
	assert.Equal(t, int64(900), CandleWidth(1, 86400, 100))
	// Never finer than requested.
	assert.Equal(t, int64(7*86400), CandleWidth(7*86400, 3600, 100))
}

func TestParseTimeframe(t *testing.T) {
	good := map[string]int64{
		"1s":  1,
		"15m": 900,
		"1H":  3600,
		" 4h": 14400,
		"1d":  86400,
	}
	for in, want := range good {
		got, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "0m", "-5m", "m", "5", "5w", "1.5h", "abc"} {
		_, err := ParseTimeframe(in)
		assert.ErrorIs(t, err, ErrInvalidTimeframe, in)
	}
}

func TestKeyEpochAligned(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 3, 17, 900, time.UTC)
	assert.Equal(t, ts.Unix()-17, Key(ts, 60))
	assert.Equal(t, ts.Unix()-ts.Unix()%7, Key(ts, 7))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Start(ts, 86400))

	// Pre-epoch times floor towards minus infinity.
	assert.Equal(t, int64(-60), Key(time.Unix(-1, 0), 60))
	assert.Equal(t, int64(-60), Key(time.Unix(-60, 0), 60))
}

func TestKeyIndependentOfQueryStart(t *testing.T) {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	trades := []time.Time{
		base.Add(3 * time.Second),
		base.Add(61 * time.Second),
		base.Add(125 * time.Second),
		base.Add(301 * time.Second),
	}

	// Two overlapping ranges with different starts must agree on the
	// buckets that cover their overlap.
	fold := func(start, end time.Time) map[int64]int64 {
		f := NewSeriesFolder(60)
		for _, ts := range trades {
			if ts.Before(start) || ts.After(end) {
				continue
			}
			f.Add(ts, 100, 1)
		}
		out := map[int64]int64{}
		for _, p := range f.Points() {
			out[p.BucketStart.Unix()] = p.TradeCount
		}
		return out
	}

	a := fold(base, base.Add(10*time.Minute))
	b := fold(base.Add(17*time.Second), base.Add(10*time.Minute))
	for k, n := range b {
		if k >= base.Add(60*time.Second).Unix() {
			assert.Equal(t, a[k], n, "bucket %d", k)
		}
		assert.Zero(t, k%60)
	}
}

func TestSeriesFolder(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	f := NewSeriesFolder(1)
	f.Add(ts, 100, 0.1)
	f.Add(ts.Add(500*time.Millisecond), 101, 0.2)
	f.Add(ts.Add(5*time.Second), 200, 1)

	pts := f.Points()
	require.Len(t, pts, 2)
	assert.Equal(t, ts.UTC(), pts[0].BucketStart)
	assert.Equal(t, 100.5, pts[0].AvgPrice)
	assert.InDelta(t, 0.3, pts[0].Volume, 1e-12)
	assert.Equal(t, int64(2), pts[0].TradeCount)
	assert.Equal(t, int64(1), pts[1].TradeCount)
}

func TestCandleFolder(t *testing.T) {
	ts := time.Unix(1_700_000_040, 0)
	f := NewCandleFolder(60)
	f.Add(ts, 100, 1)
	f.Add(ts.Add(time.Second), 105, 1)
	f.Add(ts.Add(2*time.Second), 95, 1)
	f.Add(ts.Add(3*time.Second), 101, 2)

	c := f.Candles()
	require.Len(t, c, 1)
	assert.Equal(t, 100.0, c[0].Open)
	assert.Equal(t, 105.0, c[0].High)
	assert.Equal(t, 95.0, c[0].Low)
	assert.Equal(t, 101.0, c[0].Close)
	assert.Equal(t, 5.0, c[0].Volume)
	assert.Equal(t, int64(4), c[0].TradeCount)
}

func TestCandleFolderOutOfOrder(t *testing.T) {
	ts := time.Unix(1_700_000_040, 0)
	f := NewCandleFolder(60)
	f.Add(ts.Add(2*time.Second), 101, 1)
	f.Add(ts, 100, 1)

	c := f.Candles()
	require.Len(t, c, 1)
	assert.Equal(t, 100.0, c[0].Open)
	assert.Equal(t, 101.0, c[0].Close)
}

func TestCandleFolderSkipsEmptyBuckets(t *testing.T) {
	ts := time.Unix(1_700_000_040, 0)
	f := NewCandleFolder(60)
	f.Add(ts, 1, 1)
	f.Add(ts.Add(10*time.Minute), 2, 1)

	c := f.Candles()
	require.Len(t, c, 2)
	assert.Equal(t, int64(600), c[1].BucketStart.Unix()-c[0].BucketStart.Unix())
}
