package feed

import (
	"candlecast/internal/feed/gaptrack"
	"candlecast/internal/feed/snapshot"
	"candlecast/internal/series"
)

// EventType discriminates the frames pushed to subscribers.
type EventType string

const (
	EventSnapshot      EventType = "snapshot"
	EventAppend        EventType = "append"
	EventRepair        EventType = "repair"
	EventPartialUpdate EventType = "partial_update"
	EventPartialClose  EventType = "partial_close"
	EventGapDetected   EventType = "gap_detected"
	EventGapRepaired   EventType = "gap_repaired"
)

// Event is one frame pushed to subscribers. Which payload fields are set
// depends on the type:
//
//	snapshot        Candles + Meta
//	append          Candles (closed, ascending)
//	repair          Candles (ascending)
//	partial_update  Candle with progress fraction
//	partial_close   OpenTime, Candle, LatencyMS
//	gap_detected    Segment
//	gap_repaired    Segment
type Event struct {
	Type     EventType `json:"type"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`

	Candles  []series.Candle   `json:"candles,omitempty"`
	Candle   *series.Candle    `json:"candle,omitempty"`
	Meta     *snapshot.Meta    `json:"meta,omitempty"`
	Segment  *gaptrack.Segment `json:"segment,omitempty"`
	OpenTime int64             `json:"open_time,omitempty"`

	LatencyMS int64 `json:"latency_ms,omitempty"`
}
