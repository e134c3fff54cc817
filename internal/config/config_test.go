package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("API_BASE_URL")
	os.Unsetenv("SESSION_STORE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.APIBaseURL != "http://localhost:8000/api/v1" {
		t.Errorf("unexpected default API_BASE_URL %s", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 30*time.Second {
		t.Errorf("expected default API timeout 30s, got %s", cfg.APITimeout)
	}
	if cfg.SessionStore != "memory" {
		t.Errorf("expected memory session store, got %s", cfg.SessionStore)
	}
	if cfg.AutoRefreshDebounce != 500*time.Millisecond {
		t.Errorf("expected 500ms debounce, got %s", cfg.AutoRefreshDebounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_TrimsBaseURL(t *testing.T) {
	os.Setenv("API_BASE_URL", "https://cds.example.org/api/v1/")
	defer os.Unsetenv("API_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "https://cds.example.org/api/v1" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	defer os.Unsetenv("KAFKA_BROKERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", cfg.KafkaBrokers)
	}
}

func validConfig() *Config {
	return &Config{
		Env:          "development",
		APIBaseURL:   "http://localhost:8000/api/v1",
		APITimeout:   time.Second,
		SessionStore: "memory",
		ExportStore:  "memory",
		EventsSink:   "log",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad base url", func(c *Config) { c.APIBaseURL = "localhost:8000" }, true},
		{"zero timeout", func(c *Config) { c.APITimeout = 0 }, true},
		{"postgres without url", func(c *Config) { c.SessionStore = "postgres" }, true},
		{"postgres with url", func(c *Config) {
			c.SessionStore = "postgres"
			c.DatabaseURL = "postgres://localhost/cds"
		}, false},
		{"redis without url", func(c *Config) { c.SessionStore = "redis" }, true},
		{"unknown store", func(c *Config) { c.SessionStore = "file" }, true},
		{"production short secret", func(c *Config) {
			c.Env = "production"
			c.SessionSecret = "short"
		}, true},
		{"s3 without bucket", func(c *Config) { c.ExportStore = "s3" }, true},
		{"kafka without brokers", func(c *Config) { c.EventsSink = "kafka" }, true},
		{"kafka with brokers", func(c *Config) {
			c.EventsSink = "kafka"
			c.KafkaBrokers = []string{"localhost:9092"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
	if !c.IsProduction() {
		t.Error("expected IsProduction() to return true for production")
	}
}
