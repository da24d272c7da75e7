package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bookflow/internal/bot"
	"bookflow/internal/config"
	"bookflow/internal/journal"
	"bookflow/internal/metrics"
	"bookflow/internal/spapi"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("BOOKFLOW_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := journal.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal error")
	}
	defer database.Close()

	client := spapi.NewClient(cfg.API.BaseURL, cfg.API.APIKey,
		spapi.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		spapi.WithRetries(cfg.APIMaxRetries(), cfg.APIRetryBackoff()),
		spapi.WithRateLimit(cfg.API.RequestsPerSecond, 5),
		spapi.WithLogger(&logger),
	)
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CatalogCacheTTL())
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := client.HealthCheck(pingCtx); err != nil {
		logger.Warn().Err(err).Str("base_url", cfg.API.BaseURL).Msg("booking API health check failed")
	}
	cancelPing()

	b, err := bot.New(cfg.Telegram.BotToken, client, database, nil, bot.Options{
		DefaultLocation: cfg.DefaultLocation(),
		SlotCacheTTL:    cfg.SlotCacheTTL(),
		SubmitTimeout:   cfg.SubmitTimeout(),
		SessionTimeout:  cfg.SessionTimeout(),
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	if err := config.WatchTenants(ctx, cfg.TenantsConfigPath, 30*time.Second, &logger, b.SetTenants); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.TenantsConfigPath).Msg("load tenants error")
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	b.StartSessionSweeper(ctx, time.Minute)

	logger.Info().Msg("booking bot started")
	b.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, database *journal.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.Ping(ctxPing); err != nil {
			http.Error(w, "journal not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
