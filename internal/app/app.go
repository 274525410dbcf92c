package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	api "urlshort/internal/api/http"
	redisCache "urlshort/internal/cache/redis"
	"urlshort/internal/config"
	pgRepo "urlshort/internal/database/postgres"
	"urlshort/internal/ratelimit"
	"urlshort/internal/service"
	"urlshort/pkg/postgres"
)

// Run wires the application together and blocks until ctx is cancelled or
// a component fails.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("urlshort", httplog.Options{
		JSON:     cfg.Env == config.EnvProd,
		LogLevel: logLevel(cfg.Env),
		Concise:  cfg.Env != config.EnvProd,
	})

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	svcOpts := []service.Option{
		service.WithLogger(logger.Logger),
		service.WithShortCodeLength(cfg.ShortCodeLength),
	}
	if cfg.Features.Analytics {
		svcOpts = append(svcOpts, service.WithAnalytics())
	}
	if cfg.Features.CustomCodes {
		svcOpts = append(svcOpts, service.WithCustomCodes())
	}

	if cfg.Features.Caching {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()

		if err != nil {
			// The cache is a best-effort accelerator; an unreachable redis
			// downgrades to running without caching instead of failing boot.
			logger.Warn("redis unreachable, caching disabled", slog.Any("err", err))
			client.Close()
		} else {
			defer client.Close()
			svcOpts = append(svcOpts, service.WithCache(redisCache.NewURLCache(client), cfg.Cache.TTL))
		}
	}

	urlRepo := pgRepo.NewURLRepository(db)
	urlSvc := service.NewURLService(urlRepo, svcOpts...)

	g, ctx := errgroup.WithContext(ctx)

	var limiter *ratelimit.SlidingWindow
	if cfg.Features.RateLimiting {
		limiter = ratelimit.NewSlidingWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

		g.Go(func() error {
			limiter.Sweep(ctx, ratelimit.DefaultSweepInterval)
			return nil
		})
	}

	router := api.NewRouter(logger, urlSvc, api.RouterConfig{
		BaseURL:  cfg.BaseURL,
		Features: cfg.Features,
		Limiter:  limiter,
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func logLevel(env string) slog.Level {
	switch env {
	case config.EnvProd, config.EnvStage:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
