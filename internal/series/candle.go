package series

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Candle represents a single OHLCV bar for a market series.
// Identity within a series is the OpenTime; OpenTime values are
// multiples of the series interval in milliseconds.
type Candle struct {
	Symbol              string  `json:"symbol"`
	Interval            string  `json:"interval"`
	OpenTime            int64   `json:"open_time"`  // interval start, ms since epoch
	CloseTime           int64   `json:"close_time"` // interval end, ms since epoch
	Open                float64 `json:"open"`
	High                float64 `json:"high"`
	Low                 float64 `json:"low"`
	Close               float64 `json:"close"`
	Volume              float64 `json:"volume"`
	TradeCount          int64   `json:"trade_count,omitempty"`
	TakerBuyVolume      float64 `json:"taker_buy_volume,omitempty"`
	TakerBuyQuoteVolume float64 `json:"taker_buy_quote_volume,omitempty"`
	Closed              bool    `json:"is_closed"`

	// Progress is the elapsed fraction of the interval for an
	// in-progress candle. Zero for closed candles.
	Progress float64 `json:"progress,omitempty"`
}

// Key identifies one candle series.
type Key struct {
	Symbol   string
	Interval string
}

func (k Key) String() string {
	return k.Symbol + ":" + k.Interval
}

// SpanStats describes the full confirmed extent of a series in the store.
type SpanStats struct {
	Earliest int64 `json:"earliest_open_time"`
	Latest   int64 `json:"latest_open_time"`
	Count    int64 `json:"count"`
}

// IntervalMillis parses an interval string such as "1m", "15m", "1h",
// "4h", "1d" into its duration in milliseconds.
func IntervalMillis(interval string) (int64, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}

	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}

	var unitMS int64
	switch unit {
	case 's':
		unitMS = 1_000
	case 'm':
		unitMS = 60_000
	case 'h':
		unitMS = 3_600_000
	case 'd':
		unitMS = 86_400_000
	default:
		return 0, fmt.Errorf("invalid interval unit %q", strings.ToLower(string(unit)))
	}

	return int64(n) * unitMS, nil
}

// SortAscending orders candles by open time in place. Upstream batch
// order is not guaranteed, so every batch is normalized before use.
func SortAscending(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime < candles[j].OpenTime
	})
}
