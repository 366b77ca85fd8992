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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Screening ScreeningConfig `yaml:"screening" mapstructure:"screening"`
	Mining    MiningConfig    `yaml:"mining" mapstructure:"mining"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	HaikuModel          string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel         string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
}

// ScreeningConfig tunes the classifier gateway.
type ScreeningConfig struct {
	// ConfidenceFloor is the gate below which any verdict is forced to
	// UNCLEAR for human review.
	ConfidenceFloor int `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	// Level1MaxChars / Level2MaxChars bound the document text sent to
	// the backend per stage. Head truncation: earliest N chars kept.
	Level1MaxChars int `yaml:"level1_max_chars" mapstructure:"level1_max_chars"`
	Level2MaxChars int `yaml:"level2_max_chars" mapstructure:"level2_max_chars"`
}

// MiningConfig tunes the citation miner.
type MiningConfig struct {
	MaxTokens int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BatchConfig configures batch screening.
type BatchConfig struct {
	Level1Concurrency int     `yaml:"level1_concurrency" mapstructure:"level1_concurrency"`
	Level2Concurrency int     `yaml:"level2_concurrency" mapstructure:"level2_concurrency"`
	Level2RatePerMin  float64 `yaml:"level2_rate_per_min" mapstructure:"level2_rate_per_min"`
}

// ExtractConfig configures PDF text extraction.
type ExtractConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the HTTP sidecar.
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
	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "screener.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.small_batch_threshold", 8)
	v.SetDefault("anthropic.no_batch", false)
	v.SetDefault("screening.confidence_floor", 85)
	v.SetDefault("screening.level1_max_chars", 12000)
	v.SetDefault("screening.level2_max_chars", 60000)
	v.SetDefault("mining.max_tokens", 8192)
	v.SetDefault("batch.level1_concurrency", 4)
	v.SetDefault("batch.level2_concurrency", 1)
	v.SetDefault("batch.level2_rate_per_min", 10)
	v.SetDefault("extract.pdftotext_path", "pdftotext")

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
