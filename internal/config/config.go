package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrConfigMissing means a required setting (the OneMap token) is absent.
var ErrConfigMissing = eris.New("config: required configuration missing")

// Config holds the full application configuration.
type Config struct {
	OneMap OneMapConfig `yaml:"onemap" mapstructure:"onemap"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// OneMapConfig holds OneMap API settings.
type OneMapConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	SearchURL   string `yaml:"search_url" mapstructure:"search_url"`
	NearestURL  string `yaml:"nearest_url" mapstructure:"nearest_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout.
func (c OneMapConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// EnrichConfig configures the enrichment run.
type EnrichConfig struct {
	CacheFile       string  `yaml:"cache_file" mapstructure:"cache_file"`
	CoordinatesFile string  `yaml:"coordinates_file" mapstructure:"coordinates_file"`
	DelaySecs       float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
	FlushEvery      int     `yaml:"flush_every" mapstructure:"flush_every"`
	ProgressEvery   int     `yaml:"progress_every" mapstructure:"progress_every"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// Delay returns the inter-call delay.
func (c EnrichConfig) Delay() time.Duration {
	return time.Duration(c.DelaySecs * float64(time.Second))
}

// RetryConfig configures geocode retries.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	RunsDSN string `yaml:"runs_dsn" mapstructure:"runs_dsn"`
}

// ServerConfig configures the lookup server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps environment variables used by older tooling onto keys.
var legacyEnv = map[string]string{
	"onemap.token":      "ONEMAP_API_TOKEN",
	"enrich.delay_secs": "API_DELAY_SEC",
	"enrich.cache_file": "CACHE_FILE",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("onemap.token", "")
	v.SetDefault("onemap.search_url", "https://www.onemap.gov.sg/api/common/elastic/search")
	v.SetDefault("onemap.nearest_url", "https://www.onemap.gov.sg/api/public/nearbysvc/getNearestMrtStops")
	v.SetDefault("onemap.timeout_secs", 10)
	v.SetDefault("enrich.cache_file", "data/location_cache.json")
	v.SetDefault("enrich.coordinates_file", "")
	v.SetDefault("enrich.delay_secs", 0.25)
	v.SetDefault("enrich.flush_every", 100)
	v.SetDefault("enrich.progress_every", 50)
	v.SetDefault("enrich.workers", 1)
	v.SetDefault("enrich.rate_limit_rps", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("store.runs_dsn", "data/runs.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	// Legacy variables apply only when the prefixed form is unset.
	for key, env := range legacyEnv {
		prefixed := "ENRICH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(prefixed); ok {
			continue
		}
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RequireToken returns ErrConfigMissing when no OneMap token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.OneMap.Token) == "" {
		return eris.Wrap(ErrConfigMissing, "onemap.token is required (set ENRICH_ONEMAP_TOKEN or ONEMAP_API_TOKEN)")
	}
	return nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "enrich":
		if c.Enrich.CacheFile == "" {
			errs = append(errs, "enrich.cache_file is required")
		}
		if c.Enrich.DelaySecs < 0 {
			errs = append(errs, "enrich.delay_secs must be >= 0")
		}
		if c.Enrich.Workers < 1 || c.Enrich.Workers > 16 {
			errs = append(errs, "enrich.workers must be between 1 and 16")
		}
		if c.Enrich.RateLimitRPS < 0 {
			errs = append(errs, "enrich.rate_limit_rps must be >= 0")
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be >= 1")
		}
		if c.OneMap.TimeoutSecs <= 0 {
			errs = append(errs, "onemap.timeout_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Enrich.CacheFile == "" {
			errs = append(errs, "enrich.cache_file is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
