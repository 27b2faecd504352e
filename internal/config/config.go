// Package config loads application configuration from config.yaml and the environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fire-incidents/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig describes the upstream incident feed.
type SourceConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`
	DateLayout  string `yaml:"date_layout" mapstructure:"date_layout"`
	LayoutPath  string `yaml:"layout_path" mapstructure:"layout_path"` // empty uses the built-in table layout
}

// Timeout returns the upstream fetch timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (s SourceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		zap.L().Warn("config: unknown source timezone, using UTC",
			zap.String("timezone", s.Timezone),
			zap.Error(err),
		)
		return time.UTC
	}
	return loc
}

// GeocodeConfig configures the geocoding provider and the enrichment policy.
type GeocodeConfig struct {
	MapboxToken      string  `yaml:"mapbox_token" mapstructure:"mapbox_token"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Locality         string  `yaml:"locality" mapstructure:"locality"`
	Country          string  `yaml:"country" mapstructure:"country"`
	ProximityLat     float64 `yaml:"proximity_lat" mapstructure:"proximity_lat"`
	ProximityLon     float64 `yaml:"proximity_lon" mapstructure:"proximity_lon"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	EnrichLimit      int     `yaml:"enrich_limit" mapstructure:"enrich_limit"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-request provider timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// BreakerReset returns how long an open breaker waits before probing again.
func (g GeocodeConfig) BreakerReset() time.Duration {
	return time.Duration(g.BreakerResetSecs) * time.Second
}

// CacheConfig selects and configures the geocode cache backend.
type CacheConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite, mongo, memory
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath      string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MongoURI        string `yaml:"mongo_uri" mapstructure:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database" mapstructure:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection" mapstructure:"mongo_collection"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Timeout returns the per-operation cache timeout.
func (c CacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PricingConfig holds provider pricing used for spend estimates.
type PricingConfig struct {
	GeocodePer1000 float64 `yaml:"geocode_per_1000" mapstructure:"geocode_per_1000"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("INCIDENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.base_url", "https://web.seattle.gov/sfd/realtime911/getRecsForDatePub.asp")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (compatible; SeattleResponseMap/1.0)")
	v.SetDefault("source.timeout_secs", 15)
	v.SetDefault("source.timezone", "America/Los_Angeles")
	v.SetDefault("source.date_layout", "1/2/2006")
	v.SetDefault("source.layout_path", "")
	v.SetDefault("geocode.mapbox_token", "")
	v.SetDefault("geocode.base_url", "https://api.mapbox.com/geocoding/v5/mapbox.places/")
	v.SetDefault("geocode.locality", "Seattle, WA")
	v.SetDefault("geocode.country", "us")
	v.SetDefault("geocode.proximity_lat", 47.6062)
	v.SetDefault("geocode.proximity_lon", -122.3321)
	v.SetDefault("geocode.timeout_secs", 5)
	v.SetDefault("geocode.rate_limit_rps", 10)
	v.SetDefault("geocode.enrich_limit", 30)
	v.SetDefault("geocode.concurrency", 1)
	v.SetDefault("geocode.breaker_failures", 5)
	v.SetDefault("geocode.breaker_reset_secs", 30)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("cache.sqlite_path", "geocode_cache.db")
	v.SetDefault("cache.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("cache.mongo_database", "fire_incidents")
	v.SetDefault("cache.mongo_collection", "geocoded_addresses")
	v.SetDefault("cache.timeout_secs", 2)
	v.SetDefault("cache.max_conns", 10)
	v.SetDefault("cache.min_conns", 1)
	v.SetDefault("pricing.geocode_per_1000", cost.DefaultRates().GeocodePer1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
