package postgres_test

import (
	"context"
	"os"
	"testing"

	"candlecast/config"
	"candlecast/internal/series"
	"candlecast/pkg/storage/postgres"
)

func testConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "yourpw",
		DBName:   "candlecast",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("CANDLECAST_PG_TEST") == "" {
		t.Skip("set CANDLECAST_PG_TEST to run postgres integration tests")
	}
}

// go test -v --run TestCandleCRUD
func TestCandleCRUD(t *testing.T) {
	requirePostgres(t)

	cfg := testConfig()
	client, err := postgres.NewClient(cfg.DSN("dev"))
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	if err := client.AutoMigrateCandleRecord(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	candle := series.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  1_700_000_040_000,
		CloseTime: 1_700_000_100_000,
		Open:      31400.0,
		High:      31600.0,
		Low:       31300.0,
		Close:     31500.0,
		Volume:    123.45,
		Closed:    true,
	}

	// Create
	if err := client.InsertCandle(ctx, postgres.ToCandleRecord(candle)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// A duplicate insert is skipped, not an error.
	if err := client.InsertCandle(ctx, postgres.ToCandleRecord(candle)); err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}

	// Read
	got, err := client.FetchRecent(ctx, "BTCUSDT", "1m", 10)
	if err != nil {
		t.Fatalf("fetch recent failed: %v", err)
	}
	if len(got) == 0 || got[0].Open != 31400.0 {
		t.Errorf("unexpected candle values: %+v", got)
	}

	// Upsert rewrites the row for the same identity.
	candle.Close = 31550.0
	if err := client.UpsertCandle(ctx, postgres.ToCandleRecord(candle)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, err = client.FetchRecent(ctx, "BTCUSDT", "1m", 1)
	if err != nil {
		t.Fatalf("fetch after upsert failed: %v", err)
	}
	if got[0].Close != 31550.0 {
		t.Errorf("upsert did not rewrite close, got %+v", got[0])
	}

	// Span metadata covers the stored row.
	span, err := client.FetchSpan(ctx, "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("fetch span failed: %v", err)
	}
	if span.Count == 0 || span.Earliest > span.Latest {
		t.Errorf("unexpected span: %+v", span)
	}

	// Gap sample returns open times newest first.
	opens, err := client.FetchGapSample(ctx, "BTCUSDT", "1m", 100)
	if err != nil {
		t.Fatalf("fetch gap sample failed: %v", err)
	}
	if len(opens) == 0 {
		t.Error("expected at least one open time in gap sample")
	}

	// Delete
	if err := client.DeleteOldCandles(ctx, "BTCUSDT", "1m", candle.OpenTime+1); err != nil {
		t.Errorf("delete failed: %v", err)
	}
	got, err = client.FetchRecent(ctx, "BTCUSDT", "1m", 1)
	if err != nil {
		t.Fatalf("fetch after delete failed: %v", err)
	}
	if len(got) != 0 {
		t.Error("expected no candles after delete")
	}
}
