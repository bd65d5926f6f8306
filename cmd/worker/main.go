package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aurum-erp/aurum/internal/app"
	"github.com/aurum-erp/aurum/internal/messaging"
	"github.com/aurum-erp/aurum/internal/observability"
	"github.com/aurum-erp/aurum/internal/payment"
	"github.com/aurum-erp/aurum/internal/platform/cache"
	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
	"github.com/aurum-erp/aurum/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

	metrics := observability.NewMetrics()
	jobMetrics := metrics.Jobs()

	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	settingsService := settings.NewService(settings.NewRepository(pool), pool, shared.NewActivityLogger(pool), logger)
	paymentStore := payment.NewRepository(pool)
	paymentService := payment.NewService(payment.Dependencies{
		Store: paymentStore,
		Configs: payment.NewConfigResolver(settingsService, payment.Config{
			MerchantID:  cfg.PaymentMerchantID,
			SaltKey:     cfg.PaymentSaltKey,
			SaltIndex:   cfg.PaymentSaltIndex,
			BaseURL:     cfg.PaymentBaseURL,
			RedirectURL: cfg.PaymentRedirectURL,
			CallbackURL: cfg.PaymentCallbackURL,
		}),
		Metrics: metrics,
	}, logger)
	poller := payment.NewPoller(paymentService, payment.DefaultPollInterval, payment.DefaultPollAttempts, logger)

	receiptJob := &jobs.ReceiptJob{
		Sender: messaging.NewClient(messaging.Config{
			BaseURL:   cfg.SidecarURL,
			Session:   cfg.SidecarSession,
			SecretKey: cfg.SidecarToken,
			Timeout:   cfg.SidecarTimeout,
		}),
		StoreName: cfg.StoreName,
		Currency:  cfg.StoreCurrency,
		Logger:    logger,
		Metrics:   jobMetrics,
	}
	confirmJob := &jobs.PaymentConfirmJob{
		Poller:  poller,
		Open:    paymentStore,
		Queue:   jobClient,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: jobMetrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:   shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: jobMetrics,
	}

	sweepTask, err := jobs.NewPaymentConfirmTask("")
	if err != nil {
		logger.Error("build payment sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMessagingSend, Handler: receiptJob.Handle},
			{Type: jobs.TaskPaymentConfirm, Handler: confirmJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Timeout(time.Minute)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
