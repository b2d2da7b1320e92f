// Package metrics exposes the prometheus instruments for the candle
// broadcast core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the feeds.
type Metrics struct {
	// OpenSegments gauges the number of unrepaired gap segments per series.
	OpenSegments *prometheus.GaugeVec
	// SendAttempts counts fan-out send attempts per event type.
	SendAttempts *prometheus.CounterVec
	// SendSuccess counts successful fan-out sends per event type.
	SendSuccess *prometheus.CounterVec
	// Subscribers gauges live subscribers per series.
	Subscribers *prometheus.GaugeVec
	// PartialCloseLatency observes how late candle closes arrive after
	// their interval boundary.
	PartialCloseLatency *prometheus.HistogramVec
}

// New registers and returns the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenSegments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candlecast_open_gap_segments",
			Help: "Number of gap segments currently awaiting repair.",
		}, []string{"symbol", "interval"}),
		SendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candlecast_send_attempts_total",
			Help: "Fan-out send attempts by event type.",
		}, []string{"type"}),
		SendSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candlecast_send_success_total",
			Help: "Successful fan-out sends by event type.",
		}, []string{"type"}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candlecast_subscribers",
			Help: "Live subscribers per series.",
		}, []string{"symbol", "interval"}),
		PartialCloseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "candlecast_partial_close_latency_ms",
			Help:    "Delay between an interval boundary and its close event.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"symbol", "interval"}),
	}

	reg.MustRegister(
		m.OpenSegments,
		m.SendAttempts,
		m.SendSuccess,
		m.Subscribers,
		m.PartialCloseLatency,
	)
	return m
}
