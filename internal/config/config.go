package config

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Merge      MergeConfig      `yaml:"merge" mapstructure:"merge"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// CatalogConfig configures the upstream catalog session.
type CatalogConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	SearchPath       string `yaml:"search_path" mapstructure:"search_path"`
	QueryParam       string `yaml:"query_param" mapstructure:"query_param"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs        int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	RecreateEvery    int    `yaml:"recreate_every" mapstructure:"recreate_every"`
	DelayMs          int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	CloudflareBypass bool   `yaml:"cloudflare_bypass" mapstructure:"cloudflare_bypass"`
	FixtureDir       string `yaml:"fixture_dir" mapstructure:"fixture_dir"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ExtractConfig configures classification and the extraction strategy chain.
type ExtractConfig struct {
	Profile     string   `yaml:"profile" mapstructure:"profile"`
	Strategies  []string `yaml:"strategies" mapstructure:"strategies"`
	FollowLinks bool     `yaml:"follow_links" mapstructure:"follow_links"`
}

// CheckpointConfig configures shard writing.
type CheckpointConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	DebugDir  string `yaml:"debug_dir" mapstructure:"debug_dir"`
}

// MergeConfig configures the merge engine.
type MergeConfig struct {
	Sheet             string   `yaml:"sheet" mapstructure:"sheet"`
	ValidationColumns []string `yaml:"validation_columns" mapstructure:"validation_columns"`
}

// StoreConfig configures the run ledger database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures end-of-run health alerts.
type MonitoringConfig struct {
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold       float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	CheckManualRateThreshold float64 `yaml:"check_manual_rate_threshold" mapstructure:"check_manual_rate_threshold"`
	MinItems                 int     `yaml:"min_items" mapstructure:"min_items"`
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
	v.SetEnvPrefix("CROSSREF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.base_url", "https://www.jikiu.com")
	v.SetDefault("catalog.search_path", "/catalogue/search")
	v.SetDefault("catalog.query_param", "part")
	v.SetDefault("catalog.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	v.SetDefault("catalog.timeout_secs", 15)
	v.SetDefault("catalog.max_attempts", 2)
	v.SetDefault("catalog.backoff_ms", 1000)
	v.SetDefault("catalog.recreate_every", 100)
	v.SetDefault("catalog.delay_ms", 1000)
	v.SetDefault("catalog.breaker_threshold", 5)
	v.SetDefault("catalog.breaker_reset_secs", 30)
	v.SetDefault("extract.strategies", []string{"table", "container", "text"})
	v.SetDefault("extract.follow_links", true)
	v.SetDefault("checkpoint.dir", "shards")
	v.SetDefault("checkpoint.prefix", "autosave")
	v.SetDefault("checkpoint.batch_size", 50)
	v.SetDefault("merge.sheet", "crosses")
	v.SetDefault("merge.validation_columns", []string{"status", "details"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crossref.db")
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_manual_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_items", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks that the settings a command depends on are usable.
// mode is one of "crawl", "merge" or "store".
func (c *Config) Validate(mode string) error {
	var errs []error
	switch mode {
	case "crawl":
		if c.Catalog.BaseURL == "" && c.Catalog.FixtureDir == "" {
			errs = append(errs, eris.New("catalog.base_url is required"))
		}
		if c.Catalog.MaxAttempts < 1 {
			errs = append(errs, eris.New("catalog.max_attempts must be at least 1"))
		}
		if c.Checkpoint.BatchSize < 1 {
			errs = append(errs, eris.New("checkpoint.batch_size must be at least 1"))
		}
		if c.Checkpoint.Dir == "" {
			errs = append(errs, eris.New("checkpoint.dir is required"))
		}
	case "merge":
		if c.Merge.Sheet == "" {
			errs = append(errs, eris.New("merge.sheet is required"))
		}
	case "store":
		if c.Store.Driver != "sqlite" {
			errs = append(errs, eris.Errorf("store.driver %q is not supported (valid: sqlite)", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, eris.New("store.database_url is required"))
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
	return errors.Join(errs...)
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
