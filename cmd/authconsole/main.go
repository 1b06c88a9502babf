package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/iftv-ott/iftv_client/internal/auth"
	"github.com/iftv-ott/iftv_client/internal/config"
	"github.com/iftv-ott/iftv_client/internal/identity"
	"github.com/iftv-ott/iftv_client/internal/infra"
	"github.com/iftv-ott/iftv_client/internal/logging"
	"github.com/iftv-ott/iftv_client/internal/notification"
	"github.com/iftv-ott/iftv_client/internal/server"
	"github.com/iftv-ott/iftv_client/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	var (
		db    *pgxpool.Pool
		cache *redis.Client
	)
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}
	if cfg.SessionBackend == config.BackendPostgres {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	persister, err := newPersister(ctx, cfg, cache, db)
	if err != nil {
		logger.Error("configure session persistence", "error", err)
		os.Exit(1)
	}

	gateway := identity.NewClient(identity.Options{
		BaseURL:       cfg.GatewayBaseURL,
		Role:          cfg.GatewayRole,
		DeviceToken:   cfg.GatewayDeviceToken,
		CurrentScreen: cfg.GatewayCurrentScreen,
		Timeout:       cfg.GatewayTimeout,
	}, logger)

	broadcaster := notification.NewBroadcaster()
	unsubscribe := broadcaster.Subscribe(notification.LogSubscriber(logger))
	defer unsubscribe()

	svc := auth.NewService(gateway, session.NewStore(), broadcaster, auth.Options{
		Persister: persister,
		Logger:    logger,
	})
	svc.Start(ctx)

	srv := server.New(cfg, server.Deps{
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Auth:      svc,
		States:    broadcaster,
		Registrar: gateway,
	})

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("auth console listening",
		slog.String("addr", cfg.Address()),
		slog.String("gateway", cfg.GatewayBaseURL),
		slog.String("session_backend", cfg.SessionBackend))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func newPersister(ctx context.Context, cfg config.Config, cache *redis.Client, db *pgxpool.Pool) (session.Persister, error) {
	if !cfg.Persistent() {
		return nil, nil
	}
	sealer, err := session.NewSealer(cfg.SessionSealKey)
	if err != nil {
		return nil, err
	}
	switch cfg.SessionBackend {
	case config.BackendRedis:
		return session.NewRedisPersister(cache, sealer, cfg.DeviceID, cfg.SessionTTL), nil
	case config.BackendPostgres:
		p := session.NewPostgresPersister(db, sealer, cfg.DeviceID)
		if err := p.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
