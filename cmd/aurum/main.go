package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/aurum-erp/aurum/internal/activity"
	"github.com/aurum-erp/aurum/internal/app"
	"github.com/aurum-erp/aurum/internal/auth"
	"github.com/aurum-erp/aurum/internal/banking"
	"github.com/aurum-erp/aurum/internal/catalog"
	"github.com/aurum-erp/aurum/internal/customers"
	"github.com/aurum-erp/aurum/internal/delivery"
	"github.com/aurum-erp/aurum/internal/integration"
	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/invoicing"
	"github.com/aurum-erp/aurum/internal/loyalty"
	"github.com/aurum-erp/aurum/internal/messaging"
	"github.com/aurum-erp/aurum/internal/observability"
	"github.com/aurum-erp/aurum/internal/payment"
	"github.com/aurum-erp/aurum/internal/platform/cache"
	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/platform/kvstore"
	"github.com/aurum-erp/aurum/internal/procurement"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/register"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
	"github.com/aurum-erp/aurum/internal/users"
	"github.com/aurum-erp/aurum/internal/webhook"
	"github.com/aurum-erp/aurum/jobs"
	"github.com/aurum-erp/aurum/report"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	sessionManager := shared.NewSessionManager(redisClient, "aurum_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	activityLogger := shared.NewActivityLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	// Permissions.
	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger, DeniedRedirect: "/", Metrics: metrics}
	rbacService := rbac.NewService(rbacRepo, resolver, activityLogger, logger)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, resolver)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersService := users.NewService(users.NewRepository(dbpool), rbacService, activityLogger)

	// Store settings back payments, invoices and loyalty rules.
	settingsService := settings.NewService(settings.NewRepository(dbpool), dbpool, activityLogger, logger)

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

	var localCatalog catalog.LocalStore
	if cfg.CatalogFallbackDir != "" {
		store, err := kvstore.Open(cfg.CatalogFallbackDir)
		if err != nil {
			logger.Warn("catalog fallback disabled", slog.String("dir", cfg.CatalogFallbackDir), slog.Any("error", err))
		} else {
			localCatalog = store
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("catalog fallback close", slog.Any("error", err))
				}
			}()
		}
	}
	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, localCatalog, activityLogger, logger)
	catalogImporter := catalog.NewImporter(catalogService, catalogRepo, logger)

	customersService := customers.NewService(customers.NewRepository(dbpool), activityLogger, logger)
	loyaltyService := loyalty.NewService(loyalty.NewRepository(dbpool), settingsService, activityLogger, logger)
	registerService := register.NewService(register.NewRepository(dbpool), activityLogger, logger)

	salesRepo := sales.NewRepository(dbpool)
	hooks := integration.NewHooks(loyaltyService, salesRepo, metrics, logger)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), activityLogger, idempotencyStore, inventory.ServiceConfig{}, hooks, logger)
	salesService := sales.NewService(salesRepo, sales.Dependencies{
		Stock:       inventoryService,
		Drawer:      registerService,
		Integration: hooks,
		Receipts:    jobClient,
		Customers:   customersService,
		Idempotency: idempotencyStore,
	}, logger)
	salesOrderService := sales.NewOrderService(salesRepo, salesService)
	deliveryService := delivery.NewService(delivery.NewRepository(dbpool), inventoryService, logger)
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), inventoryService, idempotencyStore, logger)

	reportClient := report.NewClient(cfg.GotenbergURL)
	invoicingService := invoicing.NewService(invoicing.NewRepository(dbpool), reportClient, settingsService, logger)
	bankingService := banking.NewService(banking.NewRepository(dbpool), logger)

	paymentService := payment.NewService(payment.Dependencies{
		Store: payment.NewRepository(dbpool),
		Configs: payment.NewConfigResolver(settingsService, payment.Config{
			MerchantID:  cfg.PaymentMerchantID,
			SaltKey:     cfg.PaymentSaltKey,
			SaltIndex:   cfg.PaymentSaltIndex,
			BaseURL:     cfg.PaymentBaseURL,
			RedirectURL: cfg.PaymentRedirectURL,
			CallbackURL: cfg.PaymentCallbackURL,
		}),
		Metrics: metrics,
		Confirm: jobClient,
	}, logger)

	// WhatsApp sidecar.
	messagingClient := messaging.NewClient(messaging.Config{
		BaseURL:   cfg.SidecarURL,
		Session:   cfg.SidecarSession,
		SecretKey: cfg.SidecarToken,
		Timeout:   cfg.SidecarTimeout,
	})
	monitor := messaging.NewMonitor(
		messagingClient,
		messaging.NewLauncher(cfg.SidecarCommand, logger),
		messaging.RedisLock{Client: redisClient},
		metrics,
		messaging.MonitorConfig{Interval: cfg.SidecarHealthEvery},
		logger,
	)
	monitor.OnStatus(func(s messaging.Status) {
		logger.Info("sidecar status", slog.String("status", string(s)))
	})
	header := http.Header{}
	if cfg.SidecarToken != "" {
		header.Set("Authorization", "Bearer "+cfg.SidecarToken)
	}
	events := messaging.NewEvents(cfg.SidecarWSURL, header, logger)
	events.On(messaging.EventConnected, func(_ context.Context, evt messaging.Event) {
		logger.Info("whatsapp connected", slog.String("session", evt.Session))
	})
	events.On(messaging.EventDisconnected, func(_ context.Context, evt messaging.Event) {
		logger.Warn("whatsapp disconnected", slog.String("session", evt.Session))
	})

	webhookHandler := webhook.NewHandler(cfg.WebhookSecret, salesService, inventoryService, idempotencyStore, metrics, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		RBACHandler:        rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		CatalogHandler:     catalog.NewHandler(logger, catalogService, catalogImporter, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		SalesHandler:       sales.NewHandler(logger, salesService, rbacMiddleware),
		SalesOrderHandler:  sales.NewOrderHandler(logger, salesOrderService, rbacMiddleware),
		DeliveryHandler:    delivery.NewHandler(logger, deliveryService, rbacMiddleware),
		InvoicingHandler:   invoicing.NewHandler(logger, invoicingService, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware),
		BankingHandler:     banking.NewHandler(logger, bankingService, rbacMiddleware),
		RegisterHandler:    register.NewHandler(logger, registerService, rbacMiddleware),
		LoyaltyHandler:     loyalty.NewHandler(logger, loyaltyService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customersService, rbacMiddleware),
		ActivityHandler:    activity.NewHandler(activity.NewRepository(dbpool), rbacMiddleware),
		SettingsHandler:    settings.NewHandler(settingsService, rbacMiddleware),
		MessagingHandler:   messaging.NewHandler(logger, messagingClient, monitor, rbacMiddleware),
		PaymentHandler:     payment.NewHandler(logger, paymentService, rbacMiddleware),
		WebhookHandler:     webhookHandler,
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		return events.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
