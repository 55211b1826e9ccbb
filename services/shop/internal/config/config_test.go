package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("SHOP_API_BASE_URL", "http://api.local:9000")
	t.Setenv("REDIS_ADDR", "localhost:6380")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logLevel: "debug"
apiBaseURL: "http://localhost:8000"
requestTimeout: "10s"
store: "redis"
redisPrefix: "tab"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.APIBaseURL != "http://api.local:9000" {
		t.Fatalf("apiBaseURL = %q, want env override", cfg.APIBaseURL)
	}
	if cfg.RedisAddr != "localhost:6380" {
		t.Fatalf("redisAddr = %q, want env override", cfg.RedisAddr)
	}
	if cfg.LogLevel != "debug" || cfg.RedisPrefix != "tab" {
		t.Fatalf("unexpected file values %+v", cfg)
	}
	if cfg.ProbePath != "/healthz" {
		t.Fatalf("probePath = %q, want default", cfg.ProbePath)
	}
	timeout, err := ParseDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil || timeout != 10*time.Second {
		t.Fatalf("requestTimeout = %v err=%v", timeout, err)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing explicit config to fail")
	}
}

func TestValidateConfigRejectsRedisWithoutAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Store = StoreRedis
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected redis store without addr to fail")
	}
	cfg.Store = "sqlite"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected unknown store to fail")
	}
}

func TestDefaultsUseFifteenSecondTimeout(t *testing.T) {
	d, err := ParseDuration("requestTimeout", Defaults().RequestTimeout)
	if err != nil || d != 15*time.Second {
		t.Fatalf("default timeout = %v err=%v", d, err)
	}
}
