package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	APIBaseURL          string        `mapstructure:"API_BASE_URL"`
	APIToken            string        `mapstructure:"API_TOKEN"`
	APITimeout          time.Duration `mapstructure:"API_TIMEOUT"`
	APIGenerateTimeout  time.Duration `mapstructure:"API_GENERATE_TIMEOUT"`
	SessionStore        string        `mapstructure:"SESSION_STORE"`
	SessionSecret       string        `mapstructure:"SESSION_SECRET"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBSchema            string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	ExportStore         string        `mapstructure:"EXPORT_STORE"`
	ExportBucket        string        `mapstructure:"EXPORT_BUCKET"`
	EventsSink          string        `mapstructure:"EVENTS_SINK"`
	KafkaBrokers        []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic          string        `mapstructure:"KAFKA_TOPIC"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	AutoRefreshDebounce time.Duration `mapstructure:"AUTO_REFRESH_DEBOUNCE"`
	MetricsEnabled      bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT",
	"ENV",
	"API_BASE_URL",
	"API_TOKEN",
	"API_TIMEOUT",
	"API_GENERATE_TIMEOUT",
	"SESSION_STORE",
	"SESSION_SECRET",
	"SESSION_TTL",
	"DATABASE_URL",
	"DB_SCHEMA",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"REDIS_URL",
	"EXPORT_STORE",
	"EXPORT_BUCKET",
	"EVENTS_SINK",
	"KAFKA_BROKERS",
	"KAFKA_TOPIC",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT",
	"BODY_LIMIT",
	"AUTO_REFRESH_DEBOUNCE",
	"METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("API_BASE_URL", "http://localhost:8000/api/v1")
	v.SetDefault("API_TIMEOUT", "30s")
	v.SetDefault("API_GENERATE_TIMEOUT", "120s")
	v.SetDefault("SESSION_STORE", "memory")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("EXPORT_STORE", "memory")
	v.SetDefault("EVENTS_SINK", "log")
	v.SetDefault("KAFKA_TOPIC", "cds-dashboard-events")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "150s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("AUTO_REFRESH_DEBOUNCE", "500ms")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the dashboard is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that every optional backend the configuration selects has
// the settings it needs.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	switch c.SessionStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE is \"postgres\"")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE is \"redis\"")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be \"memory\", \"postgres\", or \"redis\", got %q", c.SessionStore)
	}

	if c.IsProduction() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET of at least 32 bytes is required in production")
	}

	switch c.ExportStore {
	case "memory":
	case "s3":
		if c.ExportBucket == "" {
			return fmt.Errorf("EXPORT_BUCKET is required when EXPORT_STORE is \"s3\"")
		}
	default:
		return fmt.Errorf("EXPORT_STORE must be \"memory\" or \"s3\", got %q", c.ExportStore)
	}

	switch c.EventsSink {
	case "log":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_SINK is \"kafka\"")
		}
	default:
		return fmt.Errorf("EVENTS_SINK must be \"log\" or \"kafka\", got %q", c.EventsSink)
	}

	return nil
}
