package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocodeConfig selects and tunes the geocoding provider.
type GeocodeConfig struct {
	Provider    string          `yaml:"provider" mapstructure:"provider"`
	Country     string          `yaml:"country" mapstructure:"country"`
	CountryCode string          `yaml:"country_code" mapstructure:"country_code"`
	IntervalMs  int             `yaml:"interval_ms" mapstructure:"interval_ms"`
	TimeoutSecs int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string          `yaml:"user_agent" mapstructure:"user_agent"`
	Nominatim   NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Google      GoogleConfig    `yaml:"google" mapstructure:"google"`
	Cache       CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Retry       RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

// NominatimConfig configures the OpenStreetMap Nominatim provider.
type NominatimConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Geocoding API settings.
type GoogleConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Language string `yaml:"language" mapstructure:"language"`
	Region   string `yaml:"region" mapstructure:"region"`
}

// CacheConfig configures the local geocode answer cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	TTLDays int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// RetryConfig configures backoff on provider rate-limit responses.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// EnrichConfig configures the checkpointing geocode runner and file format.
type EnrichConfig struct {
	CheckpointEvery        int    `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	CheckpointIntervalSecs int    `yaml:"checkpoint_interval_secs" mapstructure:"checkpoint_interval_secs"`
	Delimiter              string `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding               string `yaml:"encoding" mapstructure:"encoding"`
	Comment                string `yaml:"comment" mapstructure:"comment"`
	Sheet                  string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows               int    `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// ReconcileConfig configures snapshot reconciliation.
type ReconcileConfig struct {
	NamePolicy       string `yaml:"name_policy" mapstructure:"name_policy"`
	ProvenanceColumn string `yaml:"provenance_column" mapstructure:"provenance_column"`
}

// StoreConfig configures the Postgres target of the load command.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Provider names accepted by geocode.provider.
const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
)

// Interval returns the minimum spacing between provider calls. Zero in the
// config selects the provider's published policy.
func (g GeocodeConfig) Interval() time.Duration {
	if g.IntervalMs > 0 {
		return time.Duration(g.IntervalMs) * time.Millisecond
	}
	if g.Provider == ProviderGoogle {
		return 100 * time.Millisecond
	}
	return time.Second
}

// Timeout returns the per-request HTTP timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	if g.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSecs) * time.Second
}

// CheckpointInterval returns the wall-clock checkpoint cadence (0 = off).
func (e EnrichConfig) CheckpointInterval() time.Duration {
	if e.CheckpointIntervalSecs <= 0 {
		return 0
	}
	return time.Duration(e.CheckpointIntervalSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROTEIRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so env overrides reach Unmarshal.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.provider", ProviderNominatim)
	v.SetDefault("geocode.country", "Brazil")
	v.SetDefault("geocode.country_code", "br")
	v.SetDefault("geocode.interval_ms", 0)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.user_agent", "roteiro-cli/1.0")
	v.SetDefault("geocode.nominatim.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.google.key", "")
	v.SetDefault("geocode.google.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.google.language", "pt-BR")
	v.SetDefault("geocode.google.region", "br")
	v.SetDefault("geocode.cache.enabled", true)
	v.SetDefault("geocode.cache.path", "geocode_cache.db")
	v.SetDefault("geocode.cache.ttl_days", 90)
	v.SetDefault("geocode.retry.max_attempts", 3)
	v.SetDefault("geocode.retry.initial_backoff_ms", 2000)
	v.SetDefault("geocode.retry.max_backoff_ms", 30000)
	v.SetDefault("enrich.checkpoint_every", 10)
	v.SetDefault("enrich.checkpoint_interval_secs", 0)
	v.SetDefault("enrich.delimiter", ";")
	v.SetDefault("enrich.encoding", "utf-8")
	v.SetDefault("enrich.comment", "")
	v.SetDefault("enrich.sheet", "")
	v.SetDefault("enrich.skip_rows", 0)
	v.SetDefault("reconcile.name_policy", "keep-last")
	v.SetDefault("reconcile.provenance_column", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.table", "public.clientes")
	v.SetDefault("metrics.textfile", "")

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

// Validate checks the settings a command needs. mode is "geocode",
// "reconcile", or "load". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	if (mode == "geocode" || mode == "reconcile") && c.Enrich.SkipRows < 0 {
		errs = append(errs, "enrich.skip_rows must be >= 0")
	}

	switch mode {
	case "geocode":
		switch c.Geocode.Provider {
		case ProviderNominatim:
			if strings.TrimSpace(c.Geocode.UserAgent) == "" {
				errs = append(errs, "geocode.user_agent is required by the nominatim usage policy")
			}
		case ProviderGoogle:
			// Key is checked by geocode.NewGoogle.
		default:
			errs = append(errs, "geocode.provider must be nominatim or google")
		}
		if c.Geocode.IntervalMs < 0 {
			errs = append(errs, "geocode.interval_ms must be >= 0")
		}
		if c.Enrich.CheckpointEvery < 1 {
			errs = append(errs, "enrich.checkpoint_every must be >= 1")
		}
		if c.Enrich.CheckpointIntervalSecs < 0 {
			errs = append(errs, "enrich.checkpoint_interval_secs must be >= 0")
		}
		if c.Geocode.Retry.MaxAttempts < 1 {
			errs = append(errs, "geocode.retry.max_attempts must be >= 1")
		}
	case "reconcile":
		switch strings.ToLower(c.Reconcile.NamePolicy) {
		case "", "keep-last", "keep-first":
		default:
			errs = append(errs, "reconcile.name_policy must be keep-last or keep-first")
		}
	case "load":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.Table == "" {
			errs = append(errs, "store.table is required")
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
