// Package config loads application configuration from config.yaml and
// LEADGEN_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vendmatch/leadgen-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Apify     ApifyConfig     `yaml:"apify" mapstructure:"apify"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string            `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (scrape fallback).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// GeocodeConfig holds geocoding settings. The Nominatim provider needs
// no key; the Google fallback activates when a key is present.
type GeocodeConfig struct {
	GoogleKey string `yaml:"google_key" mapstructure:"google_key"`
}

// ApifyConfig holds Apify actor settings for externally hosted workers.
type ApifyConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	ActorID string `yaml:"actor_id" mapstructure:"actor_id"`
}

// SearchConfig selects and tunes the discovery strategy.
type SearchConfig struct {
	// Strategy is "web" or "places".
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
	// RatePerSecond limits web search API calls.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// WorkerConfig tunes run processing and the scheduler guardrails.
type WorkerConfig struct {
	PerIndustryCap int `yaml:"per_industry_cap" mapstructure:"per_industry_cap"`
	MaxConcurrent  int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RunTimeoutMins int `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
	WatchEverySecs int `yaml:"watch_every_secs" mapstructure:"watch_every_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	CronSecret string `yaml:"cron_secret" mapstructure:"cron_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys with empty defaults are still registered so
	// environment-only values survive Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadgen.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("places.key", "")
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("apify.token", "")
	v.SetDefault("apify.actor_id", "")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("search.strategy", "web")
	v.SetDefault("search.rate_per_second", 1)
	v.SetDefault("worker.per_industry_cap", 200)
	v.SetDefault("worker.max_concurrent", 2)
	v.SetDefault("worker.run_timeout_mins", 30)
	v.SetDefault("worker.watch_every_secs", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
