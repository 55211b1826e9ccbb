package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: \"9000\"\njwtSecret: file-secret-0123456789\nallowedOrigins: [\"http://a\"]\n")
	t.Setenv("MOCKAPI_ALLOWED_ORIGINS", "http://b, http://c")
	t.Setenv("MOCKAPI_LOGIN_RATE_LIMIT_PER_MINUTE", "7")
	t.Setenv("MOCKAPI_SEED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.JWTSecret != "file-secret-0123456789" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://c" {
		t.Fatalf("origins not overridden: %v", cfg.AllowedOrigins)
	}
	if cfg.LoginRateLimitPerMinute != 7 || cfg.Seed {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	path := writeConfig(t, "port: \"9000\"\njwtSecret: short\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret-0123456789")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ttl, _ := ParseTokenTTL(cfg.TokenTTL)
	if cfg.Port != "8000" || ttl != 24*time.Hour || !cfg.Seed {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
