package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"candlecast/internal/series"
)

// InsertCandle stores a confirmed candle, skipping duplicates on the
// (symbol, interval, open_time) identity.
func (p *PostgresClient) InsertCandle(ctx context.Context, record *CandleRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "interval"},
			{Name: "open_time"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	return nil
}

// UpsertCandle stores a repaired candle, replacing any existing row for
// the same identity. Backfills may legitimately rewrite values.
func (p *PostgresClient) UpsertCandle(ctx context.Context, record *CandleRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "interval"},
			{Name: "open_time"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"close_time", "open", "high", "low", "close",
			"volume", "trade_count", "taker_buy_volume", "taker_buy_quote_volume",
		}),
	}).Create(record)

	return tx.Error
}

// SaveConfirmedCandle persists a confirmed candle from the forward stream.
func (p *PostgresClient) SaveConfirmedCandle(ctx context.Context, c series.Candle) error {
	return p.InsertCandle(ctx, ToCandleRecord(c))
}

// SaveRepairedCandle persists a backfilled candle, rewriting any
// existing row for its identity.
func (p *PostgresClient) SaveRepairedCandle(ctx context.Context, c series.Candle) error {
	return p.UpsertCandle(ctx, ToCandleRecord(c))
}

// FetchRecent returns up to limit confirmed candles, newest first.
func (p *PostgresClient) FetchRecent(ctx context.Context, symbol, interval string, limit int) ([]series.Candle, error) {
	var records []CandleRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("open_time DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetching recent candles: %w", err)
	}

	out := make([]series.Candle, len(records))
	for i := range records {
		out[i] = records[i].toCandle()
	}
	return out, nil
}

// FetchSpan returns aggregate stats over the full confirmed series, not
// limited to any window.
func (p *PostgresClient) FetchSpan(ctx context.Context, symbol, interval string) (series.SpanStats, error) {
	var span struct {
		Earliest *int64
		Latest   *int64
		Count    int64
	}
	err := p.DB.WithContext(ctx).
		Model(&CandleRecord{}).
		Select("MIN(open_time) AS earliest, MAX(open_time) AS latest, COUNT(*) AS count").
		Where("symbol = ? AND interval = ?", symbol, interval).
		Scan(&span).Error
	if err != nil {
		return series.SpanStats{}, fmt.Errorf("fetching series span: %w", err)
	}

	out := series.SpanStats{Count: span.Count}
	if span.Earliest != nil {
		out.Earliest = *span.Earliest
	}
	if span.Latest != nil {
		out.Latest = *span.Latest
	}
	return out, nil
}

// FetchGapSample returns up to n recent open times, newest first, for
// the bounded gap scan.
func (p *PostgresClient) FetchGapSample(ctx context.Context, symbol, interval string, n int) ([]int64, error) {
	var opens []int64
	err := p.DB.WithContext(ctx).
		Model(&CandleRecord{}).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("open_time DESC").
		Limit(n).
		Pluck("open_time", &opens).Error
	if err != nil {
		return nil, fmt.Errorf("fetching gap sample: %w", err)
	}
	return opens, nil
}

// DeleteOldCandles trims confirmed rows older than the cutoff.
func (p *PostgresClient) DeleteOldCandles(ctx context.Context, symbol, interval string, beforeOpenTime int64) error {
	return p.DB.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND open_time < ?", symbol, interval, beforeOpenTime).
		Delete(&CandleRecord{}).Error
}
