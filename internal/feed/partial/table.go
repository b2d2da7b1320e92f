// Package partial tracks the in-progress candle lifecycle for a series:
// a candle forms through repeated cumulative updates and is removed when
// its terminal close arrives.
package partial

import (
	"time"

	"candlecast/internal/series"
)

// Table holds at most one forming candle per open time. It is not safe
// for concurrent use; the owning feed serializes access.
type Table struct {
	intervalMS int64
	records    map[int64]series.Candle
}

// NewTable returns an empty table for a series with the given interval.
func NewTable(intervalMS int64) *Table {
	return &Table{
		intervalMS: intervalMS,
		records:    make(map[int64]series.Candle),
	}
}

// Update upserts the forming candle for its open time. Each update is a
// full replacement, callers always send the cumulative in-progress state.
func (t *Table) Update(candle series.Candle) {
	t.records[candle.OpenTime] = candle
}

// Close finalizes the forming candle for the open time and removes it.
// The returned latency is how far past the interval boundary the close
// arrived, clamped to zero. Closing an open time with no forming record
// is an idempotent no-op.
func (t *Table) Close(openTime int64, now time.Time) (latencyMS int64, existed bool) {
	if _, ok := t.records[openTime]; !ok {
		return 0, false
	}
	delete(t.records, openTime)

	latencyMS = now.UnixMilli() - (openTime + t.intervalMS)
	if latencyMS < 0 {
		latencyMS = 0
	}
	return latencyMS, true
}

// Current returns the forming candle with the highest open time, if any.
func (t *Table) Current() (series.Candle, bool) {
	var latest series.Candle
	found := false
	for _, c := range t.records {
		if !found || c.OpenTime > latest.OpenTime {
			latest = c
			found = true
		}
	}
	return latest, found
}

// Len reports the number of forming candles held.
func (t *Table) Len() int {
	return len(t.records)
}
