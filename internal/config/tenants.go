package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// TenantConfig is a business whose booking flow the bot serves.
type TenantConfig struct {
	Slug     string `yaml:"slug"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone,omitempty"`
	IsActive bool   `yaml:"is_active"`
}

// TenantsConfig is the root configuration for tenants.yaml.
type TenantsConfig struct {
	Tenants []TenantConfig `yaml:"tenants"`
	// Default is the slug opened by a bare /start.
	Default string `yaml:"default,omitempty"`
}

// LoadTenantsConfig loads and validates tenants configuration from YAML file.
func LoadTenantsConfig(path string) (*TenantsConfig, error) {
	if path == "" {
		path = "configs/tenants.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants config: %w", err)
	}

	var cfg TenantsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tenants config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate tenants config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *TenantsConfig) Validate() error {
	if len(c.Tenants) == 0 {
		return fmt.Errorf("no tenants defined")
	}

	slugs := make(map[string]bool)
	for i, t := range c.Tenants {
		if !slugPattern.MatchString(t.Slug) {
			return fmt.Errorf("tenant[%d]: invalid slug '%s'", i, t.Slug)
		}
		if slugs[t.Slug] {
			return fmt.Errorf("tenant[%d]: duplicate slug '%s'", i, t.Slug)
		}
		slugs[t.Slug] = true

		if t.Name == "" {
			return fmt.Errorf("tenant[%d]: name is required", i)
		}
		if t.Timezone != "" {
			if _, err := time.LoadLocation(t.Timezone); err != nil {
				return fmt.Errorf("tenant[%d]: unknown timezone '%s'", i, t.Timezone)
			}
		}
	}

	if c.Default != "" && !slugs[c.Default] {
		return fmt.Errorf("default tenant '%s' is not defined", c.Default)
	}
	return nil
}

// Get returns an active tenant by slug.
func (c *TenantsConfig) Get(slug string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.Slug == slug && t.IsActive {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// Active returns only active tenants.
func (c *TenantsConfig) Active() []TenantConfig {
	result := make([]TenantConfig, 0, len(c.Tenants))
	for _, t := range c.Tenants {
		if t.IsActive {
			result = append(result, t)
		}
	}
	return result
}

// String returns a summary of the configuration.
func (c *TenantsConfig) String() string {
	return fmt.Sprintf("TenantsConfig: %d tenants (%d active)", len(c.Tenants), len(c.Active()))
}
