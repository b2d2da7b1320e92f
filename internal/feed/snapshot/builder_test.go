package snapshot

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"go.uber.org/zap"

	"candlecast/internal/feed/partial"
	"candlecast/internal/series"
	storage "candlecast/pkg/storage/postgres/test"
)

const intervalMS = 60_000

func seed(store *storage.MemoryStore, opens ...int64) {
	for _, ts := range opens {
		store.SaveCandle(series.Candle{
			Symbol:   "BTCUSDT",
			Interval: "1m",
			OpenTime: ts,
			Closed:   true,
		})
	}
}

func newBuilder(store Store, partials *partial.Table, includeOpen bool) *Builder {
	return NewBuilder(Config{
		Symbol:      "BTCUSDT",
		Interval:    "1m",
		IntervalMS:  intervalMS,
		Limit:       3,
		IncludeOpen: includeOpen,
	}, store, partials, zap.NewNop())
}

func TestBuildReturnsAscendingWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(store, 0, 60_000, 120_000, 180_000, 240_000)

	payload := newBuilder(store, nil, false).Build(context.Background())

	// Limit 3: the newest three candles, oldest first.
	assert.Equal(t, len(payload.Candles), 3)
	assert.Equal(t, payload.Candles[0].OpenTime, int64(120_000))
	assert.Equal(t, payload.Candles[2].OpenTime, int64(240_000))

	assert.NotNil(t, payload.Meta)
	assert.Equal(t, payload.Meta.EarliestOpenTime, int64(0))
	assert.Equal(t, payload.Meta.LatestOpenTime, int64(240_000))
	assert.Equal(t, payload.Meta.Count, int64(5))
	assert.Equal(t, payload.Meta.CompletenessPercent, 100.0)
	assert.Equal(t, payload.Meta.LargestGapBars, int64(0))
}

func TestBuildReportsLargestGap(t *testing.T) {
	store := storage.NewMemoryStore()
	// 120000 and 180000 missing.
	seed(store, 0, 60_000, 240_000)

	payload := newBuilder(store, nil, false).Build(context.Background())

	assert.NotNil(t, payload.Meta)
	assert.Equal(t, payload.Meta.Count, int64(3))
	assert.Equal(t, payload.Meta.LargestGapBars, int64(2))
	assert.Equal(t, payload.Meta.LargestGapSpanMS, int64(120_000))
	assert.Equal(t, payload.Meta.CompletenessPercent, 60.0)
}

func TestBuildAppendsFormingCandle(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(store, 0, 60_000)

	partials := partial.NewTable(intervalMS)
	partials.Update(series.Candle{
		Symbol:   "BTCUSDT",
		Interval: "1m",
		OpenTime: 120_000,
		Progress: 0.4,
	})

	payload := newBuilder(store, partials, true).Build(context.Background())

	assert.Equal(t, len(payload.Candles), 3)
	last := payload.Candles[len(payload.Candles)-1]
	assert.Equal(t, last.OpenTime, int64(120_000))
	assert.False(t, last.Closed)
}

func TestBuildSkipsFormingDuplicateOfConfirmed(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(store, 0, 60_000)

	// The forming candle's open time already exists as a confirmed row.
	partials := partial.NewTable(intervalMS)
	partials.Update(series.Candle{OpenTime: 60_000, Progress: 0.9})

	payload := newBuilder(store, partials, true).Build(context.Background())

	assert.Equal(t, len(payload.Candles), 2)
	assert.True(t, payload.Candles[len(payload.Candles)-1].Closed)
}

func TestBuildDegradesWhenStoreUnavailable(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Fail = true

	payload := newBuilder(store, nil, false).Build(context.Background())

	// A new subscriber still gets a message, just an empty one.
	assert.Equal(t, len(payload.Candles), 0)
	assert.Nil(t, payload.Meta)
}
