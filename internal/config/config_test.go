package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOOKFLOW_TEST_TOKEN", "secret-token")
	path := writeFile(t, dir, "config.yaml", `
telegram:
  bot_token: ${BOOKFLOW_TEST_TOKEN}
api:
  base_url: https://api.example.com
  max_retries: 0
database:
  path: `+filepath.Join(dir, "data", "journal.db")+`
booking:
  default_timezone: Europe/Paris
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Telegram.BotToken)
	assert.Equal(t, 0, cfg.APIMaxRetries(), "explicit zero disables retries")
	assert.Equal(t, 10*time.Second, cfg.APITimeout())
	assert.Equal(t, 300*time.Millisecond, cfg.APIRetryBackoff())
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL())
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 2*time.Minute, cfg.SlotCacheTTL())
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout())
	assert.Equal(t, "Europe/Paris", cfg.DefaultLocation().String())
	assert.Equal(t, "configs/tenants.yaml", cfg.TenantsConfigPath)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing base url", "api: {}\n"},
		{"unknown timezone", "api:\n  base_url: http://x\nbooking:\n  default_timezone: Mars/Base\n"},
		{"bad yaml", "api: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadTenantsConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tenants.yaml", `
default: glow-spa
tenants:
  - slug: glow-spa
    name: Glow Spa
    timezone: Asia/Tokyo
    is_active: true
  - slug: old-salon
    name: Old Salon
    is_active: false
`)

	cfg, err := LoadTenantsConfig(path)
	require.NoError(t, err)
	tenant, ok := cfg.Get("glow-spa")
	require.True(t, ok)
	assert.Equal(t, "Asia/Tokyo", tenant.Timezone)
	_, ok = cfg.Get("old-salon")
	assert.False(t, ok, "inactive tenants are not served")
	assert.Len(t, cfg.Active(), 1)
	assert.Equal(t, "TenantsConfig: 2 tenants (1 active)", cfg.String())
}

func TestTenantsValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  TenantsConfig
	}{
		{"empty", TenantsConfig{}},
		{"bad slug", TenantsConfig{Tenants: []TenantConfig{{Slug: "Glow Spa", Name: "x"}}}},
		{"duplicate", TenantsConfig{Tenants: []TenantConfig{{Slug: "a", Name: "A"}, {Slug: "a", Name: "B"}}}},
		{"missing name", TenantsConfig{Tenants: []TenantConfig{{Slug: "a"}}}},
		{"bad timezone", TenantsConfig{Tenants: []TenantConfig{{Slug: "a", Name: "A", Timezone: "Nowhere/City"}}}},
		{"unknown default", TenantsConfig{Default: "b", Tenants: []TenantConfig{{Slug: "a", Name: "A"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestWatchTenantsReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tenants.yaml", "tenants:\n  - {slug: a, name: A, is_active: true}\n")

	var mu sync.Mutex
	var latest *TenantsConfig
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchTenants(ctx, path, 10*time.Millisecond, nil, func(cfg *TenantsConfig) {
		mu.Lock()
		defer mu.Unlock()
		latest = cfg
	})
	require.NoError(t, err)

	mu.Lock()
	require.NotNil(t, latest)
	assert.Len(t, latest.Tenants, 1)
	mu.Unlock()

	writeFile(t, dir, "tenants.yaml", "tenants:\n  - {slug: a, name: A, is_active: true}\n  - {slug: b, name: B, is_active: true}\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest.Tenants) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
