package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/logger"
	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
	"github.com/hackgods/practice-scheduling/internal/scheduling"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("api-server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "lock_backend", cfg.LockBackend)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if cfg.MigrateOnStart {
		if err := db.MigrateUp(rootCtx, pgPool); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.ClientOptions{
			Addr:      cfg.RedisAddr,
			Username:  cfg.RedisUsername,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			PoolSize:  cfg.RedisPoolSize,
			OpTimeout: cfg.RedisTimeout,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", "error", err)
			}
		}()
		log.Info("connected to Redis", "addr", cfg.RedisAddr)
		locker = redisclient.NewRedisOwnerLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		locker = redisclient.NewLocalOwnerLocker(cfg.LockWait)
	}

	repo := scheduling.NewPgRepository(pgPool)
	svc := scheduling.NewService(repo, locker, repo, log)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Postgres:       pgPool,
		Redis:          rdb,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
