package model

import "time"

// SeriesPoint is one bucket of a downsampled price series.
type SeriesPoint struct {
	BucketStart time.Time `json:"timestamp"`
	AvgPrice    float64   `json:"price"`
	Volume      float64   `json:"volume"`
	TradeCount  int64     `json:"trades"`
}

// Candle is one OHLCV bucket.
type Candle struct {
	BucketStart time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	TradeCount  int64     `json:"trades"`
}

// BucketQuery is a normalized range query handed to bucket sources.
// Width is in seconds; Start and End are inclusive.
type BucketQuery struct {
	Exchange string
	Symbol   string
	Start    time.Time
	End      time.Time
	Width    int64
}

type SeriesRequest struct {
	Exchange  string
	Symbol    string
	Start     *time.Time
	End       *time.Time
	MaxPoints int
}

type CandleRequest struct {
	Exchange  string
	Symbol    string
	Start     *time.Time
	End       *time.Time
	Timeframe string
	MaxPoints int
}

type SeriesResult struct {
	Exchange      string        `json:"exchange"`
	Symbol        string        `json:"symbol"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	BucketSeconds int64         `json:"bucket_seconds"`
	Source        string        `json:"source,omitempty"`
	Points        []SeriesPoint `json:"points"`
}

type CandleResult struct {
	Exchange               string    `json:"exchange"`
	Symbol                 string    `json:"symbol"`
	Start                  time.Time `json:"start"`
	End                    time.Time `json:"end"`
	Timeframe              string    `json:"timeframe"`
	RequestedBucketSeconds int64     `json:"requested_bucket_seconds"`
	BucketSeconds          int64     `json:"bucket_seconds"`
	Source                 string    `json:"source,omitempty"`
	Candles                []Candle  `json:"candles"`
}

// Coverage describes what is persisted for one exchange and symbol.
type Coverage struct {
	Exchange       string     `json:"exchange"`
	Symbol         string     `json:"symbol"`
	Trades         int64      `json:"trades"`
	FirstTimestamp *time.Time `json:"first_timestamp"`
	LastTimestamp  *time.Time `json:"last_timestamp"`
}

// TradeQuery selects recent persisted trades. Zero times are unbounded.
type TradeQuery struct {
	Exchange string
	Symbol   string
	Since    time.Time
	Until    time.Time
	Limit    int
}
