// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"stockledger/internal/app"
	"stockledger/internal/domain/validation"
	"stockledger/internal/infrastructure/auth"
	"stockledger/internal/infrastructure/cache"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/telemetry"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load(os.Getenv("STOCKLEDGER_DOTENV"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting stockledger server", "env", cfg.App.Env, "driver", cfg.DB.Driver)

	healthChecks := map[string]handlers.Pinger{}

	// --- Storage ---
	var (
		backend  app.Backend
		pool     *postgres.Pool
		listener *cache.RulesListener
	)
	if cfg.DB.InMemory() {
		backend = app.MemoryBackend(memory.NewStore())
		log.Warn("using in-memory storage, data is lost on exit")
	} else {
		poolCfg := postgres.DefaultPoolConfig(cfg.DB.ConnectionString())
		poolCfg.MaxConns = cfg.DB.MaxConns
		poolCfg.MinConns = cfg.DB.MinConns
		poolCfg.ApplicationName = cfg.App.Name

		pool, err = postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		healthChecks["database"] = pool

		txm := postgres.NewTxManager(pool)
		if cfg.DB.Migrate {
			if err := postgres.Migrate(ctx, txm); err != nil {
				log.Fatalw("failed to apply migrations", "error", err)
			}
		}

		codec, err := postgres.NewPayloadCodec(postgres.DefaultCompressThreshold)
		if err != nil {
			log.Fatalw("failed to create audit payload codec", "error", err)
		}
		defer codec.Close()

		backend = app.PostgresBackend(txm, codec)
	}

	// --- Redis: view cache backend and telemetry ---
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = cache.NewRedisClient(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
	}

	cacheBackend, shared := cache.NewBackend(ctx, redisClient, cfg.Cache.LocalCapacity)
	if shared {
		healthChecks["redis"] = redisPinger{redisClient}
	} else if redisClient != nil {
		log.Warnw("redis unavailable, falling back to in-process cache", "addr", cfg.Redis.Addr)
	}

	var loadProvider validation.LoadProvider
	if redisClient != nil {
		loadProvider = telemetry.NewRedisProvider(redisClient, cfg.Telemetry.Key, cfg.Telemetry.MaxAge)
	}

	// --- Inventory core ---
	inv, err := app.Build(ctx, backend, app.Options{
		LoadProvider:  loadProvider,
		ViewCache:     cache.NewViewCache(cacheBackend, cfg.Cache.TTL),
		RuleOverrides: cfg.Rules.Overrides,
		RuleMode:      cfg.Rules.Mode,
	})
	if err != nil {
		log.Fatalw("failed to build inventory core", "error", err)
	}

	if pool != nil {
		listener = cache.NewRulesListener(pool.Pool, inv.Validator)
		listener.OnInvalidation(func(channel, payload string) {
			log.Infow("business rules reloaded", "channel", channel, "payload", payload)
		})
		if err := listener.Start(ctx); err != nil {
			log.Fatalw("failed to start rules listener", "error", err)
		}
		defer listener.Stop()
	}

	// --- Auth ---
	routerCfg := v1.RouterConfig{
		Service:      inv.Service,
		Logger:       log,
		HealthChecks: healthChecks,
		Version:      version,
		Development:  cfg.App.IsDevelopment(),
	}
	if cfg.JWT.Secret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
		jwtCfg.Issuer = cfg.JWT.Issuer
		routerCfg.JWTValidator = auth.NewJWTService(jwtCfg)
	} else {
		log.Warn("JWT secret not configured, inventory API is unauthenticated")
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	if pool != nil {
		go reportPoolStats(ctx, pool)
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	cancel()

	log.Info("server stopped")
}

func reportPoolStats(ctx context.Context, pool *postgres.Pool) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.LogStats(ctx)
		}
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
