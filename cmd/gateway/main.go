package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"action-gateway/internal/api"
	"action-gateway/internal/config"
	idinfra "action-gateway/middleware/idempotency/infra"
	"action-gateway/middleware/ratelimit/domain"
	"action-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	counter := infra.NewStore(infra.WithCleanupEvery(cfg.CleanupEvery))
	counter.StartJanitor(ctx)

	idem := idinfra.NewStore(
		idinfra.WithPendingTTL(cfg.Idempotency.PendingTTL),
		idinfra.WithCleanupEvery(cfg.CleanupEvery),
	)
	idem.StartJanitor(ctx)

	var (
		stats  domain.StatsStore
		totals domain.StatsReader
	)
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}

		rs := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		stats, totals = rs, rs
	} else {
		ms := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		stats, totals = ms, ms
	}

	srv, err := api.New(api.Deps{
		Config:      cfg,
		Logger:      logger,
		Counter:     counter,
		Stats:       stats,
		Totals:      totals,
		Idempotency: idem,
	})
	if err != nil {
		log.Fatalf("api error: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", "type", "server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s (base url %s, env %s, version %s)", cfg.ListenAddr, cfg.BaseURL, cfg.Env, cfg.Version)
	log.Printf("rate: global=%s ping=%s orderStatus=%s demos=%s quotesSandbox=%s exempt=%v keyHeader=%q trustXFF=%v",
		cfg.RateLimit.Global, cfg.RateLimit.Ping, cfg.RateLimit.OrderStatus, cfg.RateLimit.Demos, cfg.RateLimit.QuotesSandbox,
		cfg.RateLimit.Exempt, cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustXFF)
	log.Printf("idempotency: ttl=%s pendingTTL=%s waitRetries=%d waitDelay=%s",
		cfg.Idempotency.TTL(), cfg.Idempotency.PendingTTL, cfg.Idempotency.WaitRetries, cfg.Idempotency.WaitDelay)
	log.Printf("rate-stats: enabled=%v redisAddr=%q bucket=%q ttl=%s trackKeys=%v",
		cfg.Stats.Enabled, cfg.Stats.RedisAddr, cfg.Stats.Bucket, cfg.Stats.TTL, cfg.Stats.TrackKeys)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.Concurrency.Max, cfg.Concurrency.Timeout)
	log.Printf("janitor: every=%s", counter.CleanupEvery())
	if cfg.StaticToken == "" {
		if cfg.Production() {
			logger.Error("STATIC_TOKEN is not set: authenticated routes will fail", "type", "auth")
		} else {
			logger.Warn("STATIC_TOKEN is not set: any bearer token is accepted", "type", "auth")
		}
	}

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("shutdown complete", "type", "server")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug", "trace":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error", "fatal":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
