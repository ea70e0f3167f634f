package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/citybus/internal/auth"
	"github.com/kirinyoku/citybus/internal/config"
	"github.com/kirinyoku/citybus/internal/postgres"
	"github.com/kirinyoku/citybus/internal/redis"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service"
	"github.com/kirinyoku/citybus/internal/service/booking"
	"github.com/kirinyoku/citybus/internal/service/tracking"
	httpgin "github.com/kirinyoku/citybus/internal/transport/http/gin"
)

const passExpiryInterval = time.Hour

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	services   *service.Services
	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	// Initialize dependencies
	pgxPool, err := postgres.New(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.Name,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to initialize postgres: %w", op, err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pgxPool); err != nil {
			pgxPool.Close()
			return nil, fmt.Errorf("%s: failed to apply migrations: %w", op, err)
		}
		logger.Info("database migrations applied")
	}

	rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: failed to initialize redis: %w", op, err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewTripsPubSub(rdb)
	limiter := redisrepo.NewBookingLimiter(rdb, cfg.Booking.RateLimit, time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, logger, service.Config{
		Booking: booking.Config{
			CancellationWindow: cfg.Booking.CancellationWindow,
		},
		Tracking: tracking.Config{
			Location: cfg.App.Location,
		},
	})

	tokens := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, tokens, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		pool:     pgxPool,
		rdb:      rdb,
		services: services,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.pool.Close()
	defer func() { _ = a.rdb.Close() }()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expire elapsed bus passes
	g.Go(func() error {
		ticker := time.NewTicker(passExpiryInterval)
		defer ticker.Stop()

		for {
			if _, err := a.services.Passes.ExpireOverdue(gCtx); err != nil && gCtx.Err() == nil {
				a.logger.Warn("pass expiry sweep failed", "error", err)
			}

			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			// event streams stay open until the client leaves
			a.logger.Warn("graceful shutdown timed out, closing connections", "error", err)
			return a.httpServer.Close()
		}
		return nil
	})

	return g.Wait()
}
