package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"candlecast/internal/series"
)

// ErrUnavailable simulates an unreachable store.
var ErrUnavailable = errors.New("store unavailable")

// MemoryStore is an in-memory stand-in for the postgres candle store,
// used in tests for the snapshot, reconciliation and feed paths.
type MemoryStore struct {
	mu      sync.Mutex
	candles map[series.Key]map[int64]series.Candle

	// Fail makes every read return ErrUnavailable.
	Fail bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candles: make(map[series.Key]map[int64]series.Candle),
	}
}

func (m *MemoryStore) SaveCandle(c series.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := series.Key{Symbol: c.Symbol, Interval: c.Interval}
	if m.candles[key] == nil {
		m.candles[key] = make(map[int64]series.Candle)
	}
	m.candles[key][c.OpenTime] = c
}

// sortedDesc returns the stored candles for a series, newest first.
func (m *MemoryStore) sortedDesc(symbol, interval string) []series.Candle {
	rows := m.candles[series.Key{Symbol: symbol, Interval: interval}]
	out := make([]series.Candle, 0, len(rows))
	for _, c := range rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenTime > out[j].OpenTime
	})
	return out
}

func (m *MemoryStore) FetchRecent(_ context.Context, symbol, interval string, limit int) ([]series.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return nil, ErrUnavailable
	}

	out := m.sortedDesc(symbol, interval)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FetchSpan(_ context.Context, symbol, interval string) (series.SpanStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return series.SpanStats{}, ErrUnavailable
	}

	rows := m.sortedDesc(symbol, interval)
	if len(rows) == 0 {
		return series.SpanStats{}, nil
	}
	return series.SpanStats{
		Earliest: rows[len(rows)-1].OpenTime,
		Latest:   rows[0].OpenTime,
		Count:    int64(len(rows)),
	}, nil
}

func (m *MemoryStore) FetchGapSample(_ context.Context, symbol, interval string, n int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return nil, ErrUnavailable
	}

	rows := m.sortedDesc(symbol, interval)
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	opens := make([]int64, len(rows))
	for i, c := range rows {
		opens[i] = c.OpenTime
	}
	return opens, nil
}
