package bucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Ladder holds the bucket widths, in seconds, a query may be rounded up to.
var Ladder = []int64{
	1, 2, 5, 10, 15, 30,
	60, 120, 300, 600, 900, 1800,
	3600, 7200, 14400, 86400,
}

// ChooseWidth returns the smallest ladder width that keeps a range of
// rangeSeconds within maxPoints buckets, or the largest width when none do.
func ChooseWidth(rangeSeconds float64, maxPoints int) int64 {
	if maxPoints < 1 {
		maxPoints = 1
	}
	target := rangeSeconds / float64(maxPoints)
	if target < 1 {
		target = 1
	}
	for _, w := range Ladder {
		if float64(w) >= target {
			return w
		}
	}
	return Ladder[len(Ladder)-1]
}

// CandleWidth never returns buckets finer than requested, but coarsens them
// when the requested width would exceed maxPoints over the range.
func CandleWidth(requested int64, rangeSeconds float64, maxPoints int) int64 {
	return max(requested, ChooseWidth(rangeSeconds, maxPoints))
}

var timeframeUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// ParseTimeframe parses "<integer><s|m|h|d>" (e.g. "15m") into seconds.
func ParseTimeframe(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: timeframe is required", ErrInvalidTimeframe)
	}

	mult, ok := timeframeUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q (use s/m/h/d, e.g. 15m)", ErrInvalidTimeframe, raw)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q (expected e.g. 15m)", ErrInvalidTimeframe, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %q (must be > 0)", ErrInvalidTimeframe, raw)
	}
	if n > (1<<62)/mult {
		return 0, fmt.Errorf("%w: %q (too large)", ErrInvalidTimeframe, raw)
	}
	return n * mult, nil
}
