package postgres

import (
	"time"

	"candlecast/internal/series"
)

// CandleRecord represents a confirmed candle stored in the database.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol   string `gorm:"type:text;not null;index:idx_candle_symbol;index:idx_symbol_interval_open,unique"`
	Interval string `gorm:"type:varchar(10);not null;index:idx_symbol_interval_open,unique"`
	OpenTime int64  `gorm:"not null;index:idx_symbol_interval_open,unique"`

	CloseTime int64 `gorm:"not null"`

	Open  float64 `gorm:"type:numeric;not null"`
	High  float64 `gorm:"type:numeric;not null"`
	Low   float64 `gorm:"type:numeric;not null"`
	Close float64 `gorm:"type:numeric;not null"`

	Volume              float64 `gorm:"type:numeric;not null"`
	TradeCount          int64   `gorm:"not null"`
	TakerBuyVolume      float64 `gorm:"type:numeric;not null"`
	TakerBuyQuoteVolume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (CandleRecord) TableName() string {
	return "candle_record"
}

// ToCandleRecord converts a confirmed candle into a record for DB insertion.
func ToCandleRecord(c series.Candle) *CandleRecord {
	return &CandleRecord{
		Symbol:              c.Symbol,
		Interval:            c.Interval,
		OpenTime:            c.OpenTime,
		CloseTime:           c.CloseTime,
		Open:                c.Open,
		High:                c.High,
		Low:                 c.Low,
		Close:               c.Close,
		Volume:              c.Volume,
		TradeCount:          c.TradeCount,
		TakerBuyVolume:      c.TakerBuyVolume,
		TakerBuyQuoteVolume: c.TakerBuyQuoteVolume,
	}
}

func (r *CandleRecord) toCandle() series.Candle {
	return series.Candle{
		Symbol:              r.Symbol,
		Interval:            r.Interval,
		OpenTime:            r.OpenTime,
		CloseTime:           r.CloseTime,
		Open:                r.Open,
		High:                r.High,
		Low:                 r.Low,
		Close:               r.Close,
		Volume:              r.Volume,
		TradeCount:          r.TradeCount,
		TakerBuyVolume:      r.TakerBuyVolume,
		TakerBuyQuoteVolume: r.TakerBuyQuoteVolume,
		Closed:              true,
	}
}
