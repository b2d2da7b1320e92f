package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"candlecast/internal/feed"
	"candlecast/internal/series"
)

// Store persists candles as the stream delivers them so snapshot and
// delta reads can serve them later.
type Store interface {
	SaveConfirmedCandle(ctx context.Context, c series.Candle) error
	SaveRepairedCandle(ctx context.Context, c series.Candle) error
}

// MakeMessageHandler returns a function that handles incoming upstream
// messages by decoding candle payloads, persisting confirmed rows, and
// routing them into the matching series feed.
func MakeMessageHandler(logger *zap.Logger, feeds *feed.Registry, store Store) func(msg []byte) {
	return func(msg []byte) {
		// Step 1: Extract topic string for early filtering
		var meta struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(msg, &meta); err != nil {
			logger.Warn("failed to extract topic", zap.Error(err))
			return
		}
		if !isCandleTopic(meta.Topic) {
			return // Ignore non-candle messages (e.g., subscription responses)
		}

		// Step 2: Fully parse the candle message payload
		var parsed CandleMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			logger.Warn("failed to parse candle payload", zap.Error(err))
			return
		}

		interval, symbol := splitTopic(parsed.Topic) // "candle.1m.BTCUSDT" → "1m", "BTCUSDT"
		target, ok := feeds.Get(symbol, interval)
		if !ok {
			logger.Warn("message for unconfigured series",
				zap.String("symbol", symbol), zap.String("interval", interval))
			return
		}
		intervalMS, err := series.IntervalMillis(interval)
		if err != nil {
			logger.Warn("unparseable interval in topic", zap.String("topic", parsed.Topic))
			return
		}

		switch parsed.Type {
		case MessageRepair:
			handleRepair(logger, target, store, symbol, interval, parsed.Data)
		default:
			handleLive(logger, target, store, symbol, interval, intervalMS, parsed)
		}
	}
}

// handleLive routes the forward stream: unconfirmed entries update the
// partial table, confirmed entries close their partial, get persisted,
// and advance the gap tracker as one batch.
func handleLive(logger *zap.Logger, target *feed.Feed, store Store,
	symbol, interval string, intervalMS int64, msg CandleMessage) {

	var confirmed []series.Candle
	for _, d := range msg.Data {
		candle := toCandle(symbol, interval, d)

		if !d.Confirm {
			candle.Progress = progress(msg.Ts, d.OpenTime, intervalMS)
			target.ObservePartial(candle)
			continue
		}

		target.ObservePartialClose(candle.OpenTime, candle)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := store.SaveConfirmedCandle(ctx, candle)
		cancel()
		if err != nil {
			logger.Warn("failed to persist confirmed candle",
				zap.String("symbol", symbol), zap.Int64("open_time", candle.OpenTime), zap.Error(err))
		}

		confirmed = append(confirmed, candle)
	}

	if len(confirmed) > 0 {
		target.ObserveForwardBatch(confirmed)
	}
}

// handleRepair persists a backfill batch and feeds it to the tracker.
func handleRepair(logger *zap.Logger, target *feed.Feed, store Store,
	symbol, interval string, data []CandleData) {

	var repaired []series.Candle
	for _, d := range data {
		candle := toCandle(symbol, interval, d)
		candle.Closed = true // backfills are final by definition

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := store.SaveRepairedCandle(ctx, candle)
		cancel()
		if err != nil {
			logger.Warn("failed to persist repaired candle",
				zap.String("symbol", symbol), zap.Int64("open_time", candle.OpenTime), zap.Error(err))
		}

		repaired = append(repaired, candle)
	}

	if len(repaired) > 0 {
		target.ObserveRepairBatch(repaired)
	}
}

func toCandle(symbol, interval string, d CandleData) series.Candle {
	return series.Candle{
		Symbol:              symbol,
		Interval:            interval,
		OpenTime:            d.OpenTime,
		CloseTime:           d.CloseTime,
		Open:                d.Open,
		High:                d.High,
		Low:                 d.Low,
		Close:               d.Close,
		Volume:              d.Volume,
		TradeCount:          d.TradeCount,
		TakerBuyVolume:      d.TakerBuyVolume,
		TakerBuyQuoteVolume: d.TakerBuyQuoteVolume,
		Closed:              d.Confirm,
	}
}

// progress reports the elapsed fraction of the interval, clamped to [0, 1].
func progress(nowMS, openTime, intervalMS int64) float64 {
	if nowMS <= openTime {
		return 0
	}
	p := float64(nowMS-openTime) / float64(intervalMS)
	if p > 1 {
		p = 1
	}
	return p
}

// isCandleTopic returns true if the topic string indicates a candle stream.
func isCandleTopic(topic string) bool {
	return strings.HasPrefix(topic, "candle.")
}

// splitTopic parses the interval and symbol from a topic like "candle.1m.BTCUSDT".
func splitTopic(topic string) (interval, symbol string) {
	parts := strings.Split(topic, ".")
	if len(parts) == 3 {
		return parts[1], parts[2]
	}
	return "", ""
}
