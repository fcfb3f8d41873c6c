package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Capture  CaptureConfig
	Quota    QuotaConfig
	Scoring  ScoringConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	ProxyHeader    string
	AllowedOrigins string
	BurstPerMinute int
	// IdentityHeader names the header in which the fronting identity proxy
	// passes the verified account email. Empty disables account history and
	// account usage lookups.
	IdentityHeader string
}

// DatabaseConfig selects the relational store. An empty DSN disables
// persistence and the SQL-backed usage counters.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Password        string
	DB              int
	AccountCacheSec int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxAttempts int
}

type CaptureConfig struct {
	Endpoint           string
	APIKey             string
	Alternate          AlternateCaptureConfig
	PageTimeoutSec     int
	PreviewTimeoutSec  int
	VideoTimeoutSec    int
	PageDelayMs        int
	PreviewDelayMs     int
	VideoDelayMs       int
	FallbackDelayMs    int
	ViewportWidth      int
	ViewportHeight     int
	MaxUploadDimension int
	MaxUploadBytes     int
	InspectEnabled     bool
	InspectTimeoutSec  int
}

// AlternateCaptureConfig describes the provider used when the primary
// screenshot fails. Kind is "http" or "chromedp".
type AlternateCaptureConfig struct {
	Kind     string
	Endpoint string
	APIKey   string
}

type QuotaConfig struct {
	AnonymousLimit int
	Tiers          TierLimits
}

type TierLimits struct {
	Free       int
	Pro        int
	Enterprise int
}

type ScoringConfig struct {
	Seed int64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/adalign")

	viper.SetEnvPrefix("ADALIGN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.Capture.Alternate.Kind {
	case "", "http", "chromedp":
	default:
		return fmt.Errorf("unsupported alternate capture kind %q", c.Capture.Alternate.Kind)
	}
	if c.Quota.AnonymousLimit < 0 || c.Quota.Tiers.Free < 0 || c.Quota.Tiers.Pro < 0 || c.Quota.Tiers.Enterprise < 0 {
		return errors.New("quota limits must not be negative")
	}
	return nil
}

func (c CaptureConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c CaptureConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSec) * time.Second
}

func (c CaptureConfig) PreviewTimeout() time.Duration {
	return time.Duration(c.PreviewTimeoutSec) * time.Second
}

func (c CaptureConfig) VideoTimeout() time.Duration {
	return time.Duration(c.VideoTimeoutSec) * time.Second
}

func (c CaptureConfig) InspectTimeout() time.Duration {
	return time.Duration(c.InspectTimeoutSec) * time.Second
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c RedisConfig) AccountCacheTTL() time.Duration {
	return time.Duration(c.AccountCacheSec) * time.Second
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 180)
	viper.SetDefault("server.bodyLimit", 15*1024*1024)
	viper.SetDefault("server.proxyHeader", "")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.burstPerMinute", 20)
	viper.SetDefault("server.identityHeader", "")

	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.dsn", "")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.accountCacheSec", 300)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("llm.baseURL", "")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2000)
	viper.SetDefault("llm.timeoutSec", 90)
	viper.SetDefault("llm.maxAttempts", 2)

	viper.SetDefault("capture.endpoint", "https://api.screenshotone.com/take")
	viper.SetDefault("capture.apiKey", "")
	viper.SetDefault("capture.alternate.kind", "")
	viper.SetDefault("capture.alternate.endpoint", "")
	viper.SetDefault("capture.alternate.apiKey", "")
	viper.SetDefault("capture.pageTimeoutSec", 30)
	viper.SetDefault("capture.previewTimeoutSec", 60)
	viper.SetDefault("capture.videoTimeoutSec", 75)
	viper.SetDefault("capture.pageDelayMs", 3000)
	viper.SetDefault("capture.previewDelayMs", 8000)
	viper.SetDefault("capture.videoDelayMs", 5000)
	viper.SetDefault("capture.fallbackDelayMs", 2000)
	viper.SetDefault("capture.viewportWidth", 1280)
	viper.SetDefault("capture.viewportHeight", 800)
	viper.SetDefault("capture.maxUploadDimension", 1600)
	viper.SetDefault("capture.maxUploadBytes", 10*1024*1024)
	viper.SetDefault("capture.inspectEnabled", true)
	viper.SetDefault("capture.inspectTimeoutSec", 10)

	viper.SetDefault("quota.anonymousLimit", 5)
	viper.SetDefault("quota.tiers.free", 10)
	viper.SetDefault("quota.tiers.pro", 100)
	viper.SetDefault("quota.tiers.enterprise", 1000)

	viper.SetDefault("scoring.seed", 0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}
