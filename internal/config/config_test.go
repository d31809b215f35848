package config

import (
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "STORE_TYPE", "DB_DSN", "ADMIN_API_KEY",
	"ADMIN_API_KEY_HASHES", "LOG_LEVEL", "LOG_FORMAT", "AUDIT_CAPACITY", "EVAL_CACHE_TTL",
	"DEFAULT_CHAIN", "CHAIN_RPC_EVM", "CHAIN_RPC_SOLANA", "CHAIN_TIMEOUT", "WEBHOOK_URLS",
	"WEBHOOK_SECRET", "RATE_LIMIT_PER_IP",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != "memory" {
		t.Errorf("Expected StoreType='memory', got '%s'", cfg.StoreType)
	}
	if cfg.AuditCapacity != 10000 {
		t.Errorf("Expected AuditCapacity=10000, got %d", cfg.AuditCapacity)
	}
	if cfg.EvalCacheTTL != 5*time.Minute {
		t.Errorf("Expected EvalCacheTTL=5m, got %s", cfg.EvalCacheTTL)
	}
	if cfg.DefaultChain != "evm" {
		t.Errorf("Expected DefaultChain='evm', got '%s'", cfg.DefaultChain)
	}
	if cfg.ChainTimeout != 5*time.Second {
		t.Errorf("Expected ChainTimeout=5s, got %s", cfg.ChainTimeout)
	}
	if len(cfg.WebhookURLs) != 0 {
		t.Errorf("Expected no webhook URLs, got %v", cfg.WebhookURLs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "postgres")
	t.Setenv("EVAL_CACHE_TTL", "30s")
	t.Setenv("AUDIT_CAPACITY", "50")
	t.Setenv("DEFAULT_CHAIN", "solana")
	t.Setenv("WEBHOOK_URLS", "http://a.example/hook, ,http://b.example/hook")
	t.Setenv("ADMIN_API_KEY_HASHES", "$2a$10$x,$2a$10$y")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected HTTPAddr=':9999', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != "postgres" {
		t.Errorf("Expected StoreType='postgres', got '%s'", cfg.StoreType)
	}
	if cfg.EvalCacheTTL != 30*time.Second {
		t.Errorf("Expected EvalCacheTTL=30s, got %s", cfg.EvalCacheTTL)
	}
	if cfg.AuditCapacity != 50 {
		t.Errorf("Expected AuditCapacity=50, got %d", cfg.AuditCapacity)
	}
	if cfg.DefaultChain != "solana" {
		t.Errorf("Expected DefaultChain='solana', got '%s'", cfg.DefaultChain)
	}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[1] != "http://b.example/hook" {
		t.Errorf("unexpected webhook URLs: %v", cfg.WebhookURLs)
	}
	if len(cfg.AdminKeyHashes) != 2 {
		t.Errorf("Expected 2 key hashes, got %v", cfg.AdminKeyHashes)
	}
}

func validConfig() *Config {
	return &Config{
		AppEnv:         "dev",
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		StoreType:      "memory",
		AdminAPIKey:    defaultAdminKey,
		LogFormat:      "json",
		AuditCapacity:  10,
		EvalCacheTTL:   time.Minute,
		DefaultChain:   "evm",
		ChainTimeout:   time.Second,
		RateLimitPerIP: 100,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad store", func(c *Config) { c.StoreType = "redis" }, "STORE_TYPE"},
		{"postgres without dsn", func(c *Config) { c.StoreType = "postgres"; c.DatabaseDSN = "" }, "DB_DSN"},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "APP_HTTP_ADDR"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"zero audit capacity", func(c *Config) { c.AuditCapacity = 0 }, "AUDIT_CAPACITY"},
		{"zero ttl", func(c *Config) { c.EvalCacheTTL = 0 }, "EVAL_CACHE_TTL"},
		{"default key in prod", func(c *Config) { c.AppEnv = "prod" }, "ADMIN_API_KEY"},
		{"webhooks without secret in prod", func(c *Config) {
			c.AppEnv = "production"
			c.AdminAPIKey = "strong"
			c.WebhookURLs = []string{"http://x"}
		}, "WEBHOOK_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ve, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, ve.Field)
			}
			if !strings.Contains(ve.Error(), tt.wantField) {
				t.Errorf("error message should name the field: %s", ve.Error())
			}
		})
	}
}
