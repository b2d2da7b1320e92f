// Package server exposes the subscriber-facing surface: the websocket
// subscription endpoint, the stateless delta read, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"candlecast/config"
	"candlecast/internal/feed"
	"candlecast/internal/feed/reconcile"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	IsHealthy(ctx context.Context) bool
}

type Server struct {
	mux          *http.ServeMux
	feeds        *feed.Registry
	store        Pinger
	writeTimeout time.Duration
	logger       *zap.Logger
}

// New builds the HTTP surface over the given feed registry.
func New(cfg config.ServerConfig, feeds *feed.Registry, store Pinger,
	gatherer prometheus.Gatherer, logger *zap.Logger) *Server {

	s := &Server{
		mux:          http.NewServeMux(),
		feeds:        feeds,
		store:        store,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
	}

	s.mux.HandleFunc("/ws", s.handleSubscribe)
	s.mux.HandleFunc("/api/delta", s.handleDelta)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleDelta serves the bounded catch-up read. A checkpoint older than
// the retained window is a client error; the caller must take a full
// snapshot instead. Store failures degrade to an empty payload.
func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	target, ok := s.feeds.Get(q.Get("symbol"), q.Get("interval"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown series")
		return
	}

	since, err := strconv.ParseInt(q.Get("since"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be an open_time in milliseconds")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	var overlap int64
	if raw := q.Get("overlap"); raw != "" {
		if overlap, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "overlap must be milliseconds")
			return
		}
	}

	res, err := target.Delta(r.Context(), since, limit, overlap)
	switch {
	case errors.Is(err, reconcile.ErrStaleCheckpoint):
		writeError(w, http.StatusBadRequest, "checkpoint predates retained window, request a full snapshot")
		return
	case err != nil:
		s.logger.Warn("delta read degraded", zap.Error(err))
		res = reconcile.Result{}
	}

	writeJSON(w, http.StatusOK, res)
}

// handleHealth reports store reachability and per-series gap state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type seriesHealth struct {
		Symbol       string `json:"symbol"`
		Interval     string `json:"interval"`
		Subscribers  int    `json:"subscribers"`
		OpenSegments int    `json:"open_gap_segments"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := struct {
		StoreHealthy bool           `json:"store_healthy"`
		Series       []seriesHealth `json:"series"`
	}{
		StoreHealthy: s.store.IsHealthy(ctx),
		Series:       []seriesHealth{},
	}
	for _, f := range s.feeds.All() {
		body.Series = append(body.Series, seriesHealth{
			Symbol:       f.Symbol(),
			Interval:     f.Interval(),
			Subscribers:  f.SubscriberCount(),
			OpenSegments: f.OpenSegments(),
		})
	}

	status := http.StatusOK
	if !body.StoreHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
