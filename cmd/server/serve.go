package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/config"
	"github.com/iliyamo/thursday-diner/internal/database"
	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/handler"
	"github.com/iliyamo/thursday-diner/internal/metrics"
	"github.com/iliyamo/thursday-diner/internal/middleware"
	"github.com/iliyamo/thursday-diner/internal/queue"
	"github.com/iliyamo/thursday-diner/internal/repository"
	"github.com/iliyamo/thursday-diner/internal/router"
	"github.com/iliyamo/thursday-diner/internal/scheduler"
	"github.com/iliyamo/thursday-diner/internal/service"
)

func newServeCmd() *cobra.Command {
	var noConsumer bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the reveal poller and the audit consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log, !noConsumer)
		},
	}
	cmd.Flags().BoolVar(&noConsumer, "no-consumer", false, "do not start the in-process audit consumer")
	return cmd
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger, withConsumer bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", cfg.Fields()...)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis is optional: rate limiting, caching and the poll lease degrade
	// to no-ops without it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, running without cache, rate limit and reveal lease")
	} else {
		defer rdb.Close()
	}

	m := metrics.New()
	pub := service.NewPublisher(cfg.AMQPURL, log)
	defer pub.Close()

	svc := diner.NewService(repository.NewRegistrantRepo(db), repository.NewRestaurantRepo(db), cfg.Reveal,
		diner.WithEvents(pub),
		diner.WithMetrics(m),
		diner.WithLogger(log))

	poller := scheduler.NewRevealPoller(svc, cfg.PollInterval,
		scheduler.WithLocker(scheduler.NewRedisLocker(rdb)),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(log))
	poller.Start(ctx)
	defer poller.Stop()

	if withConsumer {
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.AuditLogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	cacheCfg := config.LoadCacheConfig()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(log))

	restaurants := handler.NewRestaurantHandler(svc, middleware.NewCachePurger(cacheCfg, rdb, log), log)
	diners := handler.NewDinerHandler(svc, log)
	router.RegisterRoutes(e, db, m.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), log), cfg.JWTSecret)
	router.RegisterPublic(e, restaurants, diners, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterDiner(e, diners, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterAdmin(e, handler.NewAdminDinerHandler(svc, log), restaurants, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("reveal", cfg.Reveal.String()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
