// Package app wires the candle broadcast pipeline: storage, per-series
// feeds, the upstream ingest stream, and the subscriber-facing server.
package app

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"candlecast/config"
	"candlecast/internal/feed"
	"candlecast/internal/ingest"
	"candlecast/internal/metrics"
	"candlecast/internal/server"
	"candlecast/pkg/storage/postgres"
)

// Start initializes the broadcast pipeline for all configured series.
// It connects storage, builds one feed per series, attaches the
// upstream stream, and serves the subscriber surface.
func Start(cfg *config.Config, logger *zap.Logger) error {

	// Initialize PostgreSQL client
	store, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Server.Environment, true)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	// One feed per configured series, built up front. Lookups for
	// unconfigured series fail instead of creating hidden state.
	feeds := feed.NewRegistry()
	topics := make([]string, 0, len(cfg.Series))
	for _, sc := range cfg.Series {
		f, err := feed.New(feed.Config{
			Symbol:             sc.Symbol,
			Interval:           sc.Interval,
			SnapshotLimit:      cfg.Feed.SnapshotLimit,
			IncludeOpenCandles: cfg.Feed.IncludeOpenCandles,
			GapSampleSize:      cfg.Feed.GapSampleSize,
			RepairHistorySize:  cfg.Feed.RepairHistorySize,
			DeltaWindow:        cfg.Feed.DeltaWindow,
			DeltaMaxLimit:      cfg.Feed.DeltaMaxLimit,
		}, store, logger, m)
		if err != nil {
			return fmt.Errorf("failed to build feed: %w", err)
		}
		feeds.Add(f)
		topics = append(topics, ingest.Topic(sc.Symbol, sc.Interval))
	}
	if len(topics) == 0 {
		return fmt.Errorf("no series configured")
	}

	// Attach the upstream candle stream
	upstream := ingest.NewClient(cfg.Upstream.URL, topics, cfg.Upstream.ReconnectDelay, logger)
	upstream.SetMessageHandler(ingest.MakeMessageHandler(logger, feeds, store))
	if err := upstream.Connect(); err != nil {
		return err
	}
	go upstream.Listen()

	// Serve subscribers
	srv := server.New(cfg.Server, feeds, store, promRegistry, logger)
	go func() {
		logger.Info("serving subscribers", zap.String("addr", cfg.Server.ListenAddr))
		if err := http.ListenAndServe(cfg.Server.ListenAddr, srv); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return nil
}
