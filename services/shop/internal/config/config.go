package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel       string `yaml:"logLevel"`
	APIBaseURL     string `yaml:"apiBaseURL"`
	RequestTimeout string `yaml:"requestTimeout"`
	ProbePath      string `yaml:"probePath"`
	ProbeInterval  string `yaml:"probeInterval"`
	Store          string `yaml:"store"`
	StorePath      string `yaml:"storePath"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisPrefix    string `yaml:"redisPrefix"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() FileConfig {
	return FileConfig{
		LogLevel:       "info",
		APIBaseURL:     "http://localhost:8000",
		RequestTimeout: "15s",
		ProbePath:      "/healthz",
		ProbeInterval:  "5s",
		Store:          StoreFile,
		StorePath:      defaultStorePath(),
		RedisPrefix:    "ecomarket",
	}
}

// Load reads config from path over the defaults. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	explicit := path != ""
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if v := os.Getenv("SHOP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHOP_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHOP_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHOP_PROBE_INTERVAL"); v != "" {
		cfg.ProbeInterval = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHOP_STORE"); v != "" {
		cfg.Store = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHOP_STORE_PATH"); v != "" {
		cfg.StorePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required")
	}
	if _, err := ParseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDuration("probeInterval", cfg.ProbeInterval); err != nil {
		return err
	}
	switch cfg.Store {
	case StoreFile:
		if strings.TrimSpace(cfg.StorePath) == "" {
			return errors.New("config: storePath is required for the file store")
		}
	case StoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q (want file, redis or memory)", cfg.Store)
	}
	return nil
}

// ParseDuration parses a positive duration setting.
func ParseDuration(name, value string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid %s duration: must be positive", name)
	}
	return dur, nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return dir + string(os.PathSeparator) + "ecomarket" + string(os.PathSeparator) + "state.json"
}
