package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchTenants reloads tenants.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop; an invalid edit
// is logged and the previous config stays in effect.
func WatchTenants(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*TenantsConfig)) error {
	if path == "" {
		path = "configs/tenants.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg, err := LoadTenantsConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadTenantsConfig(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("tenants reload failed")
					continue
				}
				logger.Info().Str("tenants", cfg.String()).Msg("tenants reloaded")
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
