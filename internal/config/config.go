package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crashify360/totalloss/internal/resilience"
	"github.com/crashify360/totalloss/internal/salvage"
	"github.com/crashify360/totalloss/internal/threshold"
	"github.com/crashify360/totalloss/internal/validate"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Validation validate.Rules   `yaml:"validation" mapstructure:"validation"`
	Extractor  salvage.Config   `yaml:"extractor" mapstructure:"extractor"`
	Valuation  ValuationConfig  `yaml:"valuation" mapstructure:"valuation"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ThresholdsConfig holds the total-loss rate table. RatesFile, when set,
// replaces Rates.
type ThresholdsConfig struct {
	Rates     map[string]float64 `yaml:"rates" mapstructure:"rates"`
	RatesFile string             `yaml:"rates_file" mapstructure:"rates_file"`
}

// Build returns the configured rate table.
func (t ThresholdsConfig) Build() (threshold.Rates, error) {
	switch {
	case t.RatesFile != "":
		return threshold.LoadRates(t.RatesFile)
	case len(t.Rates) > 0:
		return threshold.FromFloats(t.Rates)
	default:
		return threshold.DefaultRates(), nil
	}
}

// ValuationConfig holds AutoGrap market value API settings.
type ValuationConfig struct {
	APIKey              string              `yaml:"api_key" mapstructure:"api_key"`
	BaseURL             string              `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs         int                 `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerHour         int                 `yaml:"rate_per_hour" mapstructure:"rate_per_hour"`
	Burst               int                 `yaml:"burst" mapstructure:"burst"`
	CacheTTLHours       int                 `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	BreakerThreshold    int                 `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int                 `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	Retry               resilience.Settings `yaml:"retry" mapstructure:"retry"`
}

// Timeout returns the per-request timeout.
func (v ValuationConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSecs) * time.Second
}

// CacheTTL returns how long lookups stay cached.
func (v ValuationConfig) CacheTTL() time.Duration {
	return time.Duration(v.CacheTTLHours) * time.Hour
}

// EmailConfig holds SMTP settings for salvage requests.
type EmailConfig struct {
	SMTPHost    string              `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort    int                 `yaml:"smtp_port" mapstructure:"smtp_port"`
	Username    string              `yaml:"username" mapstructure:"username"`
	Password    string              `yaml:"password" mapstructure:"password"`
	From        string              `yaml:"from" mapstructure:"from"`
	UseTLS      bool                `yaml:"use_tls" mapstructure:"use_tls"`
	DryRun      bool                `yaml:"dry_run" mapstructure:"dry_run"`
	Concurrency int                 `yaml:"concurrency" mapstructure:"concurrency"`
	Retry       resilience.Settings `yaml:"retry" mapstructure:"retry"`
}

// BatchConfig controls batch evaluation.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (if present) and TOTALLOSS_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOTALLOSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rules := validate.DefaultRules()
	ext := salvage.DefaultConfig()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "totalloss.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("thresholds.rates", map[string]float64{
		"client":      0.70,
		"third_party": 0.70,
		"commercial":  0.65,
		"luxury":      0.75,
	})
	v.SetDefault("thresholds.rates_file", "")
	v.SetDefault("validation.min_policy_value", rules.MinPolicyValue)
	v.SetDefault("validation.max_policy_value", rules.MaxPolicyValue)
	v.SetDefault("validation.max_repair_ratio", rules.MaxRepairRatio)
	v.SetDefault("extractor.low_ratio", ext.LowRatio)
	v.SetDefault("extractor.high_ratio", ext.HighRatio)
	v.SetDefault("extractor.min_bare_value", ext.MinBareValue)
	v.SetDefault("extractor.confidence_floor", ext.ConfidenceFloor)
	v.SetDefault("extractor.window", ext.Window)
	v.SetDefault("valuation.api_key", "")
	v.SetDefault("valuation.base_url", "https://api.autograp.com.au/v1")
	v.SetDefault("valuation.timeout_secs", 30)
	v.SetDefault("valuation.rate_per_hour", 100)
	v.SetDefault("valuation.burst", 10)
	v.SetDefault("valuation.cache_ttl_hours", 24)
	v.SetDefault("valuation.breaker_threshold", 5)
	v.SetDefault("valuation.breaker_cooldown_secs", 60)
	v.SetDefault("valuation.retry.max_attempts", 3)
	v.SetDefault("valuation.retry.initial_backoff_ms", 1000)
	v.SetDefault("valuation.retry.max_backoff_ms", 30000)
	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.dry_run", false)
	v.SetDefault("email.concurrency", 4)
	v.SetDefault("email.retry.max_attempts", 3)
	v.SetDefault("email.retry.initial_backoff_ms", 2000)
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Modes: store,
// evaluate, batch, notify, valuate, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				errs = append(errs, "store.path is required for sqlite")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	}
	checkRules := func() {
		r := c.Validation
		if r.MinPolicyValue <= 0 || r.MaxPolicyValue <= r.MinPolicyValue {
			errs = append(errs, "validation policy bounds must satisfy 0 < min_policy_value < max_policy_value")
		}
		if r.MaxRepairRatio <= 0 {
			errs = append(errs, "validation.max_repair_ratio must be > 0")
		}
	}

	switch mode {
	case "store":
		checkStore()
	case "evaluate":
		checkRules()
	case "batch":
		checkRules()
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
	case "notify":
		if c.Email.From == "" {
			errs = append(errs, "email.from is required")
		}
		if !c.Email.DryRun && c.Email.SMTPHost == "" {
			errs = append(errs, "email.smtp_host is required unless email.dry_run is set")
		}
	case "valuate":
		if c.Valuation.APIKey == "" {
			errs = append(errs, "valuation.api_key is required")
		}
	case "serve":
		checkStore()
		checkRules()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Extractor.ConfidenceFloor < 0 || c.Extractor.ConfidenceFloor > 1 {
		errs = append(errs, "extractor.confidence_floor must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger builds the global zap logger from cfg.
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
