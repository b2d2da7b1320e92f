// Package reconcile answers the stateless delta/catch-up read: what
// confirmed candles and repairs changed since a caller-supplied
// checkpoint, bounded to the retained window.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"candlecast/internal/feed/history"
	"candlecast/internal/series"
)

// ErrStaleCheckpoint reports a checkpoint older than the retained
// window. The caller must fall back to a full snapshot.
var ErrStaleCheckpoint = errors.New("checkpoint predates retained window")

// Store is the read surface of the candle store the service needs.
type Store interface {
	// FetchRecent returns up to limit confirmed candles, newest first.
	FetchRecent(ctx context.Context, symbol, interval string, limit int) ([]series.Candle, error)
}

// RepairSource yields retained repair entries after a checkpoint.
type RepairSource interface {
	RepairsSince(openTime int64) []history.Entry
}

// Result is the delta payload for one catch-up read.
type Result struct {
	BaseFrom  int64           `json:"base_from"`
	BaseTo    int64           `json:"base_to"`
	Candles   []series.Candle `json:"candles"`
	Repairs   []history.Entry `json:"repairs"`
	Truncated bool            `json:"truncated"`
}

// Config controls the delta read bounds.
type Config struct {
	Symbol     string
	Interval   string
	IntervalMS int64
	// Window is how many recent confirmed candles form the retained
	// catch-up window.
	Window int
	// MaxLimit caps the per-request candle count.
	MaxLimit int
}

// Service serves delta reads for one series. Reads are stateless: no
// subscriber identity or cursor is kept server-side.
type Service struct {
	cfg     Config
	store   Store
	repairs RepairSource
}

// NewService returns a delta service over the given store and repair
// history source.
func NewService(cfg Config, store Store, repairs RepairSource) *Service {
	return &Service{cfg: cfg, store: store, repairs: repairs}
}

// Delta returns confirmed candles newer than since minus the overlap
// margin, plus retained repairs strictly after since. An overlap of zero
// or less defaults to one interval, a safety margin against boundary
// misses. A since older than the retained window is a client error.
func (s *Service) Delta(ctx context.Context, since int64, limit int, overlap int64) (Result, error) {
	if limit <= 0 || limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if overlap <= 0 {
		overlap = s.cfg.IntervalMS
	}

	window, err := s.store.FetchRecent(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.Window)
	if err != nil {
		return Result{}, fmt.Errorf("fetching retained window: %w", err)
	}
	if len(window) == 0 {
		return Result{Candles: []series.Candle{}, Repairs: s.repairs.RepairsSince(since)}, nil
	}

	series.SortAscending(window)
	baseFrom := window[0].OpenTime
	baseTo := window[len(window)-1].OpenTime

	if since < baseFrom {
		return Result{}, fmt.Errorf("since=%d base_from=%d: %w", since, baseFrom, ErrStaleCheckpoint)
	}

	boundary := since - overlap
	var candles []series.Candle
	truncated := false
	for _, c := range window {
		if c.OpenTime <= boundary {
			continue
		}
		if len(candles) == limit {
			truncated = true
			break
		}
		candles = append(candles, c)
	}
	if candles == nil {
		candles = []series.Candle{}
	}

	return Result{
		BaseFrom:  baseFrom,
		BaseTo:    baseTo,
		Candles:   candles,
		Repairs:   s.repairs.RepairsSince(since),
		Truncated: truncated,
	}, nil
}
