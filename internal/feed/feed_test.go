package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"candlecast/internal/feed/gaptrack"
	"candlecast/internal/metrics"
	"candlecast/internal/series"
	storage "candlecast/pkg/storage/postgres/test"
)

// fakeSubscriber records every event it receives and can be told to
// start failing sends.
type fakeSubscriber struct {
	id     uuid.UUID
	events []Event
	fail   bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{id: uuid.New()}
}

func (s *fakeSubscriber) ID() uuid.UUID { return s.id }

func (s *fakeSubscriber) Send(ev Event) error {
	if s.fail {
		return errors.New("send failed")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSubscriber) types() []EventType {
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newTestFeed(t *testing.T, store Store) *Feed {
	t.Helper()
	f, err := New(Config{
		Symbol:             "BTCUSDT",
		Interval:           "1m",
		SnapshotLimit:      10,
		IncludeOpenCandles: true,
		RepairHistorySize:  16,
		DeltaWindow:        100,
		DeltaMaxLimit:      50,
	}, store, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	assert.NoError(t, err)
	f.now = func() time.Time { return time.UnixMilli(1_000_000) }
	return f
}

func closedCandle(openTime int64) series.Candle {
	return series.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  openTime,
		CloseTime: openTime + 60_000,
		Closed:    true,
	}
}

func TestSubscribeSendsSnapshotFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	store.SaveCandle(closedCandle(0))
	store.SaveCandle(closedCandle(60_000))

	f := newTestFeed(t, store)
	sub := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), sub))

	f.ObserveForwardBatch([]series.Candle{closedCandle(120_000)})

	assert.Equal(t, sub.types(), []EventType{EventSnapshot, EventAppend})
	assert.Equal(t, len(sub.events[0].Candles), 2)
	assert.NotNil(t, sub.events[0].Meta)
	assert.Equal(t, f.SubscriberCount(), 1)
}

func TestSubscribeFailedSnapshotDoesNotRegister(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())

	sub := newFakeSubscriber()
	sub.fail = true
	assert.Error(t, f.Subscribe(context.Background(), sub))
	assert.Equal(t, f.SubscriberCount(), 0)
}

func TestForwardBatchBroadcastsAppendAndGap(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())
	sub := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), sub))

	f.ObserveForwardBatch([]series.Candle{closedCandle(0), closedCandle(60_000)})
	// Skipping 120000 and 180000, delivered out of order.
	f.ObserveForwardBatch([]series.Candle{closedCandle(240_000)})

	assert.Equal(t, sub.types(), []EventType{
		EventSnapshot, EventAppend, EventAppend, EventGapDetected,
	})

	gap := sub.events[3]
	assert.Equal(t, gap.Segment.From, int64(120_000))
	assert.Equal(t, gap.Segment.To, int64(180_000))
	assert.Equal(t, gap.Segment.MissingBars, 2)
	assert.Equal(t, f.OpenSegments(), 1)
}

func TestForwardBatchNormalizesOrderAndSkipsOpenCandles(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())
	sub := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), sub))

	forming := series.Candle{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 180_000}
	f.ObserveForwardBatch([]series.Candle{closedCandle(120_000), closedCandle(0), forming, closedCandle(60_000)})

	appendEv := sub.events[1]
	assert.Equal(t, appendEv.Type, EventAppend)
	assert.Equal(t, len(appendEv.Candles), 3)
	assert.Equal(t, appendEv.Candles[0].OpenTime, int64(0))
	assert.Equal(t, appendEv.Candles[2].OpenTime, int64(120_000))
	assert.Equal(t, f.OpenSegments(), 0)
}

func TestRepairBatchClosesGapOnce(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())
	sub := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), sub))

	f.ObserveForwardBatch([]series.Candle{closedCandle(0), closedCandle(60_000)})
	f.ObserveForwardBatch([]series.Candle{closedCandle(240_000)})

	// Partial repair leaves the segment open.
	f.ObserveRepairBatch([]series.Candle{closedCandle(120_000)})
	assert.Equal(t, f.OpenSegments(), 1)

	// The final missing bar closes it.
	f.ObserveRepairBatch([]series.Candle{closedCandle(180_000)})
	assert.Equal(t, f.OpenSegments(), 0)

	assert.Equal(t, sub.types(), []EventType{
		EventSnapshot,
		EventAppend, EventAppend, EventGapDetected,
		EventRepair,
		EventRepair, EventGapRepaired,
	})

	repaired := sub.events[len(sub.events)-1]
	assert.Equal(t, repaired.Segment.State, gaptrack.SegmentClosed)

	// Replaying the repair cannot re-emit gap_repaired.
	f.ObserveRepairBatch([]series.Candle{closedCandle(180_000)})
	assert.Equal(t, sub.types()[len(sub.types())-1], EventRepair)
}

func TestPartialLifecycle(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())
	sub := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), sub))

	forming := series.Candle{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 900_000}
	for _, progress := range []float64{0.25, 0.5, 0.75} {
		forming.Progress = progress
		f.ObservePartial(forming)
	}
	f.ObservePartialClose(900_000, closedCandle(900_000))

	assert.Equal(t, sub.types(), []EventType{
		EventSnapshot,
		EventPartialUpdate, EventPartialUpdate, EventPartialUpdate,
		EventPartialClose,
	})

	closeEv := sub.events[len(sub.events)-1]
	assert.Equal(t, closeEv.OpenTime, int64(900_000))
	// now is 1000000ms, boundary was 960000ms.
	assert.Equal(t, closeEv.LatencyMS, int64(40_000))

	// A duplicate close is a silent no-op.
	f.ObservePartialClose(900_000, closedCandle(900_000))
	assert.Equal(t, len(sub.events), 5)
}

func TestFailedSendDropsOnlyThatSubscriber(t *testing.T) {
	f := newTestFeed(t, storage.NewMemoryStore())

	healthy := newFakeSubscriber()
	flaky := newFakeSubscriber()
	assert.NoError(t, f.Subscribe(context.Background(), healthy))
	assert.NoError(t, f.Subscribe(context.Background(), flaky))

	f.ObserveForwardBatch([]series.Candle{closedCandle(0)})
	assert.Equal(t, f.SubscriberCount(), 2)

	// The second broadcast fails for the flaky subscriber.
	flaky.fail = true
	f.ObserveForwardBatch([]series.Candle{closedCandle(60_000)})
	assert.Equal(t, f.SubscriberCount(), 1)

	// By the third broadcast it is gone; the healthy one saw everything.
	f.ObserveForwardBatch([]series.Candle{closedCandle(120_000)})
	assert.Equal(t, healthy.types(), []EventType{
		EventSnapshot, EventAppend, EventAppend, EventAppend,
	})
}

func TestDeltaServesRepairHistory(t *testing.T) {
	store := storage.NewMemoryStore()
	store.SaveCandle(closedCandle(0))
	store.SaveCandle(closedCandle(60_000))
	store.SaveCandle(closedCandle(240_000))

	f := newTestFeed(t, store)
	f.ObserveForwardBatch([]series.Candle{closedCandle(0), closedCandle(60_000)})
	f.ObserveForwardBatch([]series.Candle{closedCandle(240_000)})
	f.ObserveRepairBatch([]series.Candle{closedCandle(120_000), closedCandle(180_000)})

	res, err := f.Delta(context.Background(), 60_000, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, res.BaseFrom, int64(0))
	assert.Equal(t, res.BaseTo, int64(240_000))
	assert.Equal(t, len(res.Repairs), 2)
	assert.Equal(t, res.Repairs[0].OpenTime, int64(120_000))
	assert.Equal(t, res.Repairs[1].OpenTime, int64(180_000))
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	f := newTestFeed(t, storage.NewMemoryStore())
	reg.Add(f)

	got, ok := reg.Get("BTCUSDT", "1m")
	assert.True(t, ok)
	assert.True(t, got == f)

	_, ok = reg.Get("ETHUSDT", "1m")
	assert.False(t, ok)
	assert.Equal(t, len(reg.All()), 1)
}
