package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bridgelet/core/events"
	"bridgelet/core/state"
	"bridgelet/gateway/auth"
	"bridgelet/gateway/middleware"
	"bridgelet/native/ephemeral"
	"bridgelet/native/reserve"
	"bridgelet/observability/logging"
	"bridgelet/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("SWEEP_GATEWAY_CONFIG"), "path to the gateway TOML config")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.Setup("sweep-gateway", cfg.Environment, cfg.LogLevel)

	db, err := storage.NewLevelDB(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", slog.String("path", cfg.DatabasePath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := events.NewLogEmitter(logger)

	registry := reserve.NewRegistry()
	registry.SetState(manager)
	registry.SetEmitter(emitter)
	if err := bootstrapRegistry(cfg, registry); err != nil {
		logger.Error("bootstrap reserve registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := ephemeral.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetReserveConfig(registry)

	authenticator := auth.NewAuthenticator(cfg.secrets(), cfg.TimestampSkew.Duration, cfg.NonceTTL.Duration, cfg.NonceCapacity, nil)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.LogRequests}, logger)
	limiter := middleware.NewRateLimiter(rateLimits(cfg), logger)
	server := NewServer(engine, registry, authenticator, obs, limiter, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("sweep gateway listening", slog.String("addr", cfg.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down sweep gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// bootstrapRegistry installs the configured admin and base reserve on first
// boot. An already-initialized registry is left untouched so restarts never
// clobber operator updates.
func bootstrapRegistry(cfg Config, registry *reserve.Registry) error {
	if cfg.AdminAddress == "" {
		return nil
	}
	admin, err := parseAddress(cfg.AdminAddress)
	if err != nil {
		return err
	}
	if _, ok := registry.Admin(); !ok {
		if err := registry.Initialize(admin); err != nil {
			return err
		}
	}
	amount := cfg.baseReserveAmount()
	if amount == nil || registry.HasBaseReserve() {
		return nil
	}
	return registry.SetBaseReserve(admin, amount)
}

func rateLimits(cfg Config) map[string]middleware.RateLimit {
	out := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		out[key] = middleware.RateLimit{
			RequestsPerMinute: limit.RequestsPerMinute,
			Burst:             limit.Burst,
		}
	}
	return out
}
