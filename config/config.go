package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pairflow/internal/settings"
)

type Config struct {
	Feed     FeedConfig        `mapstructure:"feed"`
	Server   ServerConfig      `mapstructure:"server"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Defaults settings.Settings `mapstructure:"defaults"`
	Log      LogConfig         `mapstructure:"log"`
}

type FeedConfig struct {
	WSURL   string   `mapstructure:"ws_url"`
	Symbols []string `mapstructure:"symbols"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PipelineConfig struct {
	TickBuffer      int           `mapstructure:"tick_buffer"`
	BarBuffer       int           `mapstructure:"bar_buffer"`
	BufferCapacity  int           `mapstructure:"buffer_capacity"`
	MaxBars         int           `mapstructure:"max_bars"`
	QueueSize       int           `mapstructure:"queue_size"`
	SnapshotHistory int           `mapstructure:"snapshot_history"`
	BroadcastEvery  time.Duration `mapstructure:"broadcast_every"`
	FinalizerPoll   time.Duration `mapstructure:"finalizer_poll"`
	FinalizeGrace   time.Duration `mapstructure:"finalize_grace"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml when present and overrides with environment
// variables; every key has a default so the process starts with no file.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Support environment variables with dot notation (e.g., FEED_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("failed to read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.ws_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("feed.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("pipeline.tick_buffer", 4096)
	v.SetDefault("pipeline.bar_buffer", 1024)
	v.SetDefault("pipeline.buffer_capacity", 10000)
	v.SetDefault("pipeline.max_bars", 1000)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.snapshot_history", 10000)
	v.SetDefault("pipeline.broadcast_every", "1s")
	v.SetDefault("pipeline.finalizer_poll", "1s")
	v.SetDefault("pipeline.finalize_grace", "1s")

	def := settings.Default()
	v.SetDefault("defaults.symbol_a", def.SymbolA)
	v.SetDefault("defaults.symbol_b", def.SymbolB)
	v.SetDefault("defaults.display_symbols", def.DisplaySymbols)
	v.SetDefault("defaults.interval", string(def.Interval))
	v.SetDefault("defaults.window_size", def.WindowSize)
	v.SetDefault("defaults.correlation_window", def.CorrelationWindow)
	v.SetDefault("defaults.regression_method", string(def.RegressionMethod))
	v.SetDefault("defaults.zscore_threshold", def.ZScoreThreshold)
	v.SetDefault("defaults.correlation_threshold", def.CorrelationThreshold)
	v.SetDefault("defaults.volatility_threshold", def.VolatilityThreshold)
	v.SetDefault("defaults.cooldown_seconds", def.CooldownSeconds)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "prod")
}
