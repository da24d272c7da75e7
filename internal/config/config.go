package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	API struct {
		BaseURL                string  `yaml:"base_url"`
		APIKey                 string  `yaml:"api_key"`
		TimeoutSeconds         int     `yaml:"timeout_seconds"`
		MaxRetries             *int    `yaml:"max_retries"`
		RetryBackoffMS         int     `yaml:"retry_backoff_ms"`
		RequestsPerSecond      float64 `yaml:"requests_per_second"`
		CatalogCacheTTLSeconds int     `yaml:"catalog_cache_ttl_seconds"`
	} `yaml:"api"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		DefaultTimezone       string `yaml:"default_timezone"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes"`
		SlotCacheTTLSeconds   int    `yaml:"slot_cache_ttl_seconds"`
		SubmitTimeoutSeconds  int    `yaml:"submit_timeout_seconds"`
	} `yaml:"booking"`

	TenantsConfigPath string `yaml:"tenants_config_path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/bookflow.db"
	}
	if cfg.TenantsConfigPath == "" {
		cfg.TenantsConfigPath = "configs/tenants.yaml"
	}
	if _, err := time.LoadLocation(cfg.Booking.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("booking.default_timezone: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// APIMaxRetries applies to read-only calls; submissions are never retried.
func (c *Config) APIMaxRetries() int {
	if c.API.MaxRetries == nil || *c.API.MaxRetries < 0 {
		return 2
	}
	return *c.API.MaxRetries
}

func (c *Config) APIRetryBackoff() time.Duration {
	if c.API.RetryBackoffMS <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.API.RetryBackoffMS) * time.Millisecond
}

func (c *Config) CatalogCacheTTL() time.Duration {
	if c.API.CatalogCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.API.CatalogCacheTTLSeconds) * time.Second
}

// DefaultLocation is used for visitors whose timezone is unknown.
func (c *Config) DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(c.Booking.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) SlotCacheTTL() time.Duration {
	if c.Booking.SlotCacheTTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Booking.SlotCacheTTLSeconds) * time.Second
}

func (c *Config) SubmitTimeout() time.Duration {
	if c.Booking.SubmitTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.SubmitTimeoutSeconds) * time.Second
}
