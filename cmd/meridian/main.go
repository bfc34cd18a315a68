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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-settle/internal/app"
	"github.com/meridian-erp/meridian-settle/internal/auth"
	"github.com/meridian-erp/meridian-settle/internal/ledger"
	"github.com/meridian-erp/meridian-settle/internal/platform/cache"
	"github.com/meridian-erp/meridian-settle/internal/platform/db"
	"github.com/meridian-erp/meridian-settle/internal/settlement"
	"github.com/meridian-erp/meridian-settle/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, obligation cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerAPIToken)
	if err := ledgerClient.Ping(ctx); err != nil {
		logger.Warn("ledger ping", slog.Any("error", err))
	}

	obligationCache := settlement.NewObligationCache(redisClient, cfg.ObligationCacheTTL)

	enqueuer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	repo := settlement.NewRepository(pool)
	service := settlement.NewService(repo, ledgerClient, obligationCache, enqueuer)
	handler := settlement.NewHandler(logger, service)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		SettlementHandler: handler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := obligationCache.ListenForInvalidation(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("cache invalidation listener stopped", slog.Any("error", err))
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
