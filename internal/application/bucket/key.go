package bucket

import "time"

// Key returns the start, in unix seconds, of the width-second bucket holding
// t. Buckets are aligned to the unix epoch, never to a query's start, so any
// two queries with the same width agree on every boundary. All in-process
// aggregation goes through this function.
func Key(t time.Time, width int64) int64 {
	if width <= 0 {
		width = 1
	}
	sec := t.Unix()
	q := sec / width
	if sec%width != 0 && sec < 0 {
		q--
	}
	return q * width
}

// Start is Key as a UTC time.
func Start(t time.Time, width int64) time.Time {
	return time.Unix(Key(t, width), 0).UTC()
}
