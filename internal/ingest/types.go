package ingest

// CandleMessage represents an upstream websocket message containing
// candle data for one series.
type CandleMessage struct {
	Topic string       `json:"topic"` // subscription stream, e.g. "candle.1m.BTCUSDT"
	Type  string       `json:"type"`  // "live" for the forward stream, "repair" for backfills
	Data  []CandleData `json:"data"`  // candle entries
	Ts    int64        `json:"ts"`    // message timestamp in milliseconds
}

// Message types on the upstream stream.
const (
	MessageLive   = "live"
	MessageRepair = "repair"
)

// CandleData is one candle entry in an upstream message. Confirm marks
// the interval as fully elapsed with final values.
type CandleData struct {
	OpenTime            int64   `json:"open_time"`
	CloseTime           int64   `json:"close_time"`
	Open                float64 `json:"open"`
	High                float64 `json:"high"`
	Low                 float64 `json:"low"`
	Close               float64 `json:"close"`
	Volume              float64 `json:"volume"`
	TradeCount          int64   `json:"trade_count"`
	TakerBuyVolume      float64 `json:"taker_buy_volume"`
	TakerBuyQuoteVolume float64 `json:"taker_buy_quote_volume"`
	Confirm             bool    `json:"confirm"`
}
