package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Series   []SeriesConfig `mapstructure:"series"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// ServerConfig configures the subscriber-facing HTTP surface.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// WriteTimeout bounds each per-subscriber websocket send so one
	// unresponsive connection cannot stall a broadcast.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // "dev" or "prod"
}

// UpstreamConfig configures the exchange candle stream the service
// consumes.
type UpstreamConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// FeedConfig configures the per-series broadcast state.
type FeedConfig struct {
	SnapshotLimit      int  `mapstructure:"snapshot_limit"`
	IncludeOpenCandles bool `mapstructure:"include_open_candles"`
	GapSampleSize      int  `mapstructure:"gap_sample_size"`
	RepairHistorySize  int  `mapstructure:"repair_history_size"`
	DeltaWindow        int  `mapstructure:"delta_window"`
	DeltaMaxLimit      int  `mapstructure:"delta_max_limit"`
}

// SeriesConfig names one served (symbol, interval) series.
type SeriesConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., UPSTREAM_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("upstream.reconnect_delay", 3*time.Second)
	v.SetDefault("feed.snapshot_limit", 500)
	v.SetDefault("feed.include_open_candles", true)
	v.SetDefault("feed.gap_sample_size", 2000)
	v.SetDefault("feed.repair_history_size", 4096)
	v.SetDefault("feed.delta_window", 5000)
	v.SetDefault("feed.delta_max_limit", 1000)
}
