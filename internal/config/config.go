package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Timeouts    TimeoutConfig     `yaml:"timeouts" mapstructure:"timeouts"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Viability   ViabilityConfig   `yaml:"viability" mapstructure:"viability"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MiniModel string `yaml:"mini_model" mapstructure:"mini_model"`
}

// AnthropicConfig holds Anthropic fallback provider settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// NotionConfig holds Notion API credentials and the reports database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReportDB string `yaml:"report_db" mapstructure:"report_db"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ConcurrencyConfig bounds parallel LLM calls.
type ConcurrencyConfig struct {
	MaxParallel       int `yaml:"max_parallel" mapstructure:"max_parallel"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// TimeoutConfig holds per-operation-type timeouts in seconds.
type TimeoutConfig struct {
	DiscoverySecs  int `yaml:"discovery_secs" mapstructure:"discovery_secs"`
	AnalysisSecs   int `yaml:"analysis_secs" mapstructure:"analysis_secs"`
	ScoringSecs    int `yaml:"scoring_secs" mapstructure:"scoring_secs"`
	ValidationSecs int `yaml:"validation_secs" mapstructure:"validation_secs"`
}

// DiscoveryConfig configures location discovery post-processing.
type DiscoveryConfig struct {
	MaxCandidates    int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	MinStoreKM       float64 `yaml:"min_store_km" mapstructure:"min_store_km"`
	ClusterRadiusKM  float64 `yaml:"cluster_radius_km" mapstructure:"cluster_radius_km"`
	QualityThreshold float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	TradeAreaShp     string  `yaml:"trade_area_shp" mapstructure:"trade_area_shp"`
}

// ScoringConfig configures strategic scoring.
type ScoringConfig struct {
	RubricPath string `yaml:"rubric_path" mapstructure:"rubric_path"`
}

// ViabilityConfig configures viability validation.
type ViabilityConfig struct {
	MinConfidence     float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	CannibalizationKM float64 `yaml:"cannibalization_km" mapstructure:"cannibalization_km"`
}

// CacheConfig configures the seeded LLM response cache.
type CacheConfig struct {
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
}

// BudgetConfig configures cost alerting.
type BudgetConfig struct {
	RunAlertUSD float64 `yaml:"run_alert_usd" mapstructure:"run_alert_usd"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("EXPANSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "expansion.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.mini_model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("concurrency.max_parallel", 4)
	v.SetDefault("concurrency.requests_per_minute", 60)
	v.SetDefault("timeouts.discovery_secs", 120)
	v.SetDefault("timeouts.analysis_secs", 90)
	v.SetDefault("timeouts.scoring_secs", 60)
	v.SetDefault("timeouts.validation_secs", 60)
	v.SetDefault("discovery.max_candidates", 20)
	v.SetDefault("discovery.min_store_km", 2.0)
	v.SetDefault("discovery.cluster_radius_km", 0.5)
	v.SetDefault("discovery.quality_threshold", 0.6)
	v.SetDefault("scoring.rubric_path", "rubric.yaml")
	v.SetDefault("viability.min_confidence", 0.7)
	v.SetDefault("viability.cannibalization_km", 3.0)
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("budget.run_alert_usd", 25.0)

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
