// Package snapshot composes the one-time payload a new subscriber
// receives: a bounded window of recent confirmed candles plus derived
// completeness and gap metadata.
package snapshot

import (
	"context"

	"go.uber.org/zap"

	"candlecast/internal/feed/partial"
	"candlecast/internal/series"
)

// DefaultGapSample bounds how many recent rows the gap scan inspects.
// Scanning full history per connection is too expensive.
const DefaultGapSample = 2000

// Store is the read surface of the candle store the builder needs.
type Store interface {
	// FetchRecent returns up to limit confirmed candles, newest first.
	FetchRecent(ctx context.Context, symbol, interval string, limit int) ([]series.Candle, error)
	// FetchSpan returns aggregate stats over the full confirmed series.
	FetchSpan(ctx context.Context, symbol, interval string) (series.SpanStats, error)
	// FetchGapSample returns up to n recent open times, newest first.
	FetchGapSample(ctx context.Context, symbol, interval string, n int) ([]int64, error)
}

// Meta describes how complete the confirmed series is.
type Meta struct {
	EarliestOpenTime    int64   `json:"earliest_open_time"`
	LatestOpenTime      int64   `json:"latest_open_time"`
	Count               int64   `json:"count"`
	CompletenessPercent float64 `json:"completeness_percent"`
	LargestGapBars      int64   `json:"largest_gap_bars"`
	LargestGapSpanMS    int64   `json:"largest_gap_span_ms"`
}

// Payload is the snapshot sent to a new subscriber. Meta is nil when the
// store was unreachable; the subscriber still gets a message.
type Payload struct {
	Candles []series.Candle `json:"candles"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// Config controls snapshot composition.
type Config struct {
	Symbol      string
	Interval    string
	IntervalMS  int64
	Limit       int
	GapSample   int
	IncludeOpen bool
}

// Builder builds snapshot payloads for one series.
type Builder struct {
	cfg      Config
	store    Store
	partials *partial.Table
	logger   *zap.Logger
}

// NewBuilder returns a builder reading confirmed candles from the store
// and, when configured, the forming candle from the partial table.
func NewBuilder(cfg Config, store Store, partials *partial.Table, logger *zap.Logger) *Builder {
	if cfg.GapSample <= 0 {
		cfg.GapSample = DefaultGapSample
	}
	return &Builder{cfg: cfg, store: store, partials: partials, logger: logger}
}

// Build composes the snapshot payload. Store failures degrade to an
// empty best-effort payload rather than failing the connection.
func (b *Builder) Build(ctx context.Context) Payload {
	recent, err := b.store.FetchRecent(ctx, b.cfg.Symbol, b.cfg.Interval, b.cfg.Limit)
	if err != nil {
		b.logger.Warn("snapshot window fetch failed, sending empty snapshot",
			zap.String("symbol", b.cfg.Symbol),
			zap.String("interval", b.cfg.Interval),
			zap.Error(err))
		return Payload{Candles: []series.Candle{}}
	}

	// The store returns newest first; subscribers get ascending order.
	series.SortAscending(recent)

	if b.cfg.IncludeOpen && b.partials != nil {
		if forming, ok := b.partials.Current(); ok {
			if len(recent) == 0 || forming.OpenTime > recent[len(recent)-1].OpenTime {
				recent = append(recent, forming)
			}
		}
	}

	return Payload{Candles: recent, Meta: b.buildMeta(ctx)}
}

func (b *Builder) buildMeta(ctx context.Context) *Meta {
	span, err := b.store.FetchSpan(ctx, b.cfg.Symbol, b.cfg.Interval)
	if err != nil {
		b.logger.Warn("snapshot span fetch failed",
			zap.String("symbol", b.cfg.Symbol), zap.Error(err))
		return nil
	}
	if span.Count == 0 {
		return &Meta{}
	}

	meta := &Meta{
		EarliestOpenTime: span.Earliest,
		LatestOpenTime:   span.Latest,
		Count:            span.Count,
	}

	expected := (span.Latest-span.Earliest)/b.cfg.IntervalMS + 1
	if expected > 0 {
		meta.CompletenessPercent = float64(span.Count) / float64(expected) * 100
	}

	opens, err := b.store.FetchGapSample(ctx, b.cfg.Symbol, b.cfg.Interval, b.cfg.GapSample)
	if err != nil {
		b.logger.Warn("snapshot gap sample fetch failed",
			zap.String("symbol", b.cfg.Symbol), zap.Error(err))
		return meta
	}
	meta.LargestGapBars, meta.LargestGapSpanMS = largestGap(opens, b.cfg.IntervalMS)

	return meta
}

// largestGap scans open times (newest first) for the widest delta
// exceeding one interval.
func largestGap(opensDesc []int64, intervalMS int64) (bars int64, spanMS int64) {
	for i := 0; i < len(opensDesc)-1; i++ {
		delta := opensDesc[i] - opensDesc[i+1]
		missing := delta/intervalMS - 1
		if missing > bars {
			bars = missing
			spanMS = missing * intervalMS
		}
	}
	return bars, spanMS
}
