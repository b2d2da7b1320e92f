// Package feed owns the live broadcast state for one candle series: the
// subscriber set, the gap tracker, the partial candle table and the
// repair history ring. One Feed exists per (symbol, interval), built at
// startup and shared by the ingest and server paths.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"candlecast/internal/feed/gaptrack"
	"candlecast/internal/feed/history"
	"candlecast/internal/feed/partial"
	"candlecast/internal/feed/reconcile"
	"candlecast/internal/feed/snapshot"
	"candlecast/internal/metrics"
	"candlecast/internal/series"
)

// Subscriber is a live connection able to receive events. A failed send
// drops the subscriber; there is no retry or backlog.
type Subscriber interface {
	ID() uuid.UUID
	Send(ev Event) error
}

// Store is the candle store read surface the feed composes snapshots
// and delta reads from.
type Store interface {
	FetchRecent(ctx context.Context, symbol, interval string, limit int) ([]series.Candle, error)
	FetchSpan(ctx context.Context, symbol, interval string) (series.SpanStats, error)
	FetchGapSample(ctx context.Context, symbol, interval string, n int) ([]int64, error)
}

// Config represents the per-series feed configuration.
type Config struct {
	Symbol   string
	Interval string

	SnapshotLimit      int
	IncludeOpenCandles bool
	GapSampleSize      int
	RepairHistorySize  int
	DeltaWindow        int
	DeltaMaxLimit      int
}

// Feed is the broadcast engine for one series. All state mutations are
// serialized through a single coarse lock; fan-out iterates a copy of
// the subscriber set so removals cannot corrupt an in-flight loop.
type Feed struct {
	cfg        Config
	intervalMS int64
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	subs     map[uuid.UUID]Subscriber
	tracker  *gaptrack.Tracker
	partials *partial.Table
	repairs  *history.Ring

	snapshots *snapshot.Builder
	recon     *reconcile.Service

	now func() time.Time
}

// New initializes a feed for the configured series.
func New(cfg Config, store Store, logger *zap.Logger, m *metrics.Metrics) (*Feed, error) {
	intervalMS, err := series.IntervalMillis(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", cfg.Symbol, err)
	}

	f := &Feed{
		cfg:        cfg,
		intervalMS: intervalMS,
		logger: logger.With(
			zap.String("symbol", cfg.Symbol),
			zap.String("interval", cfg.Interval),
		),
		metrics:  m,
		subs:     make(map[uuid.UUID]Subscriber),
		tracker:  gaptrack.New(intervalMS),
		partials: partial.NewTable(intervalMS),
		repairs:  history.NewRing(cfg.RepairHistorySize),
		now:      time.Now,
	}

	f.snapshots = snapshot.NewBuilder(snapshot.Config{
		Symbol:      cfg.Symbol,
		Interval:    cfg.Interval,
		IntervalMS:  intervalMS,
		Limit:       cfg.SnapshotLimit,
		GapSample:   cfg.GapSampleSize,
		IncludeOpen: cfg.IncludeOpenCandles,
	}, store, f.partials, f.logger)

	f.recon = reconcile.NewService(reconcile.Config{
		Symbol:     cfg.Symbol,
		Interval:   cfg.Interval,
		IntervalMS: intervalMS,
		Window:     cfg.DeltaWindow,
		MaxLimit:   cfg.DeltaMaxLimit,
	}, store, f)

	return f, nil
}

// Symbol returns the series symbol.
func (f *Feed) Symbol() string { return f.cfg.Symbol }

// Interval returns the series interval.
func (f *Feed) Interval() string { return f.cfg.Interval }

// Subscribe sends the one-time snapshot to the subscriber and then adds
// it to the live fan-out set. The snapshot is built outside the feed
// lock; store reads must not block event processing.
func (f *Feed) Subscribe(ctx context.Context, sub Subscriber) error {
	payload := f.snapshots.Build(ctx)

	ev := Event{
		Type:     EventSnapshot,
		Symbol:   f.cfg.Symbol,
		Interval: f.cfg.Interval,
		Candles:  payload.Candles,
		Meta:     payload.Meta,
	}
	f.metrics.SendAttempts.WithLabelValues(string(EventSnapshot)).Inc()
	if err := sub.Send(ev); err != nil {
		return fmt.Errorf("sending snapshot: %w", err)
	}
	f.metrics.SendSuccess.WithLabelValues(string(EventSnapshot)).Inc()

	f.mu.Lock()
	f.subs[sub.ID()] = sub
	n := len(f.subs)
	f.mu.Unlock()

	f.metrics.Subscribers.WithLabelValues(f.cfg.Symbol, f.cfg.Interval).Set(float64(n))
	f.logger.Info("subscriber joined", zap.String("id", sub.ID().String()), zap.Int("subscribers", n))
	return nil
}

// Unsubscribe removes a subscriber from the fan-out set.
func (f *Feed) Unsubscribe(id uuid.UUID) {
	f.mu.Lock()
	_, ok := f.subs[id]
	delete(f.subs, id)
	n := len(f.subs)
	f.mu.Unlock()

	if ok {
		f.metrics.Subscribers.WithLabelValues(f.cfg.Symbol, f.cfg.Interval).Set(float64(n))
		f.logger.Info("subscriber left", zap.String("id", id.String()), zap.Int("subscribers", n))
	}
}

// SubscriberCount reports the live subscriber set size.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// ObserveForwardBatch processes a batch of confirmed candles from the
// ingest stream: the gap tracker sees each open time, then the batch is
// broadcast as one append event followed by any gap_detected events.
func (f *Feed) ObserveForwardBatch(batch []series.Candle) {
	closed := make([]series.Candle, 0, len(batch))
	for _, c := range batch {
		if c.Closed {
			closed = append(closed, c)
		}
	}
	if len(closed) == 0 {
		return
	}
	series.SortAscending(closed)

	f.mu.Lock()
	var segments []*gaptrack.Segment
	for _, c := range closed {
		if seg := f.tracker.ObserveForward(c.OpenTime); seg != nil {
			segments = append(segments, seg)
		}
	}
	open := f.tracker.OpenSegments()
	f.mu.Unlock()

	f.metrics.OpenSegments.WithLabelValues(f.cfg.Symbol, f.cfg.Interval).Set(float64(open))

	f.broadcast(Event{
		Type:     EventAppend,
		Symbol:   f.cfg.Symbol,
		Interval: f.cfg.Interval,
		Candles:  closed,
	})
	for _, seg := range segments {
		f.logger.Warn("gap detected",
			zap.Int64("from", seg.From),
			zap.Int64("to", seg.To),
			zap.Int("missing", seg.MissingBars))
		f.broadcast(Event{
			Type:     EventGapDetected,
			Symbol:   f.cfg.Symbol,
			Interval: f.cfg.Interval,
			Segment:  seg,
		})
	}
}

// ObserveRepairBatch processes a backfill batch: open segments are
// updated, the repairs are retained for catch-up reads, and the batch is
// broadcast as one repair event followed by any gap_repaired events.
func (f *Feed) ObserveRepairBatch(batch []series.Candle) {
	if len(batch) == 0 {
		return
	}
	repaired := make([]series.Candle, len(batch))
	copy(repaired, batch)
	series.SortAscending(repaired)

	opens := make([]int64, len(repaired))
	for i, c := range repaired {
		opens[i] = c.OpenTime
	}

	f.mu.Lock()
	closedSegments := f.tracker.ObserveRepairs(opens)
	recordedAt := f.now()
	for _, c := range repaired {
		f.repairs.Append(history.Entry{
			OpenTime:   c.OpenTime,
			Candle:     c,
			RecordedAt: recordedAt,
		})
	}
	open := f.tracker.OpenSegments()
	f.mu.Unlock()

	f.metrics.OpenSegments.WithLabelValues(f.cfg.Symbol, f.cfg.Interval).Set(float64(open))

	f.broadcast(Event{
		Type:     EventRepair,
		Symbol:   f.cfg.Symbol,
		Interval: f.cfg.Interval,
		Candles:  repaired,
	})
	for _, seg := range closedSegments {
		f.logger.Info("gap repaired",
			zap.Int64("from", seg.From),
			zap.Int64("to", seg.To),
			zap.Int("missing", seg.MissingBars))
		f.broadcast(Event{
			Type:     EventGapRepaired,
			Symbol:   f.cfg.Symbol,
			Interval: f.cfg.Interval,
			Segment:  seg,
		})
	}
}

// ObservePartial records an in-progress candle update and broadcasts it.
// Each update carries the full cumulative state of the forming candle.
func (f *Feed) ObservePartial(candle series.Candle) {
	f.mu.Lock()
	f.partials.Update(candle)
	f.mu.Unlock()

	f.broadcast(Event{
		Type:     EventPartialUpdate,
		Symbol:   f.cfg.Symbol,
		Interval: f.cfg.Interval,
		Candle:   &candle,
	})
}

// ObservePartialClose finalizes the forming candle for the open time.
// Closing an open time that was never forming is an idempotent no-op and
// broadcasts nothing.
func (f *Feed) ObservePartialClose(openTime int64, final series.Candle) {
	f.mu.Lock()
	latencyMS, existed := f.partials.Close(openTime, f.now())
	f.mu.Unlock()

	if !existed {
		return
	}

	f.metrics.PartialCloseLatency.
		WithLabelValues(f.cfg.Symbol, f.cfg.Interval).
		Observe(float64(latencyMS))

	f.broadcast(Event{
		Type:      EventPartialClose,
		Symbol:    f.cfg.Symbol,
		Interval:  f.cfg.Interval,
		OpenTime:  openTime,
		Candle:    &final,
		LatencyMS: latencyMS,
	})
}

// Delta serves the stateless catch-up read for this series.
func (f *Feed) Delta(ctx context.Context, since int64, limit int, overlap int64) (reconcile.Result, error) {
	return f.recon.Delta(ctx, since, limit, overlap)
}

// RepairsSince returns retained repair entries strictly after the
// checkpoint. Implements the reconcile repair source under the feed lock.
func (f *Feed) RepairsSince(openTime int64) []history.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repairs.Since(openTime)
}

// OpenSegments reports the number of gap segments awaiting repair.
func (f *Feed) OpenSegments() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracker.OpenSegments()
}

// broadcast sends the event to every live subscriber sequentially. A
// send failure removes that subscriber and never surfaces to the others.
func (f *Feed) broadcast(ev Event) {
	f.mu.Lock()
	targets := make([]Subscriber, 0, len(f.subs))
	for _, sub := range f.subs {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		f.metrics.SendAttempts.WithLabelValues(string(ev.Type)).Inc()
		if err := sub.Send(ev); err != nil {
			f.logger.Warn("dropping subscriber after failed send",
				zap.String("id", sub.ID().String()),
				zap.String("event", string(ev.Type)),
				zap.Error(err))
			f.Unsubscribe(sub.ID())
			continue
		}
		f.metrics.SendSuccess.WithLabelValues(string(ev.Type)).Inc()
	}
}
