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

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/config"
	"github.com/rankforge/rankforge/internal/handlers"
	"github.com/rankforge/rankforge/internal/logic"
	"github.com/rankforge/rankforge/internal/storage"
	"github.com/rankforge/rankforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres: system of record.
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalw("Postgres connection failed", "error", err)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalw("Schema setup failed", "error", err)
	}

	// ClickHouse: optional analytics archive.
	var archive *storage.ClickHouse
	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			log.Fatalw("Invalid ClickHouse URL", "error", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			log.Fatalw("ClickHouse connection failed", "error", err)
		}
		defer conn.Close()
		archive = storage.NewClickHouse(conn, logger)
		if err := archive.EnsureSchema(ctx); err != nil {
			log.Fatalw("Archive schema setup failed", "error", err)
		}
	}

	// Redis: optional leaderboard cache.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalw("Invalid Redis URL", "error", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	leaderboard := logic.NewLeaderboardService(store, rdb, logger)

	poolCfg := worker.PoolConfig{
		WorkerCount: cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
		Store:       store,
		Leaderboard: leaderboard,
		Logger:      logger,
	}
	if archive != nil {
		poolCfg.Archive = archive
	}
	workers := worker.NewPool(poolCfg)
	workers.Start(ctx)

	hcfg := handlers.Config{
		WorkerPool:  workers,
		Store:       store,
		Leaderboard: leaderboard,
		Redis:       rdb,
		Logger:      logger,
	}
	if archive != nil {
		hcfg.ClickHouse = archive
	}
	h := handlers.New(hcfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.NewRouter(h, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("Server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown failed", "error", err)
	}
	workers.Stop()
	log.Info("Shutdown complete")
}
