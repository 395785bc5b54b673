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

	"github.com/pharmaops/pharmaops/internal/app"
	"github.com/pharmaops/pharmaops/internal/audit"
	audithttp "github.com/pharmaops/pharmaops/internal/audit/http"
	"github.com/pharmaops/pharmaops/internal/auth"
	"github.com/pharmaops/pharmaops/internal/credits"
	"github.com/pharmaops/pharmaops/internal/expenses"
	"github.com/pharmaops/pharmaops/internal/inventory"
	"github.com/pharmaops/pharmaops/internal/masterdata"
	"github.com/pharmaops/pharmaops/internal/observability"
	"github.com/pharmaops/pharmaops/internal/platform/cache"
	"github.com/pharmaops/pharmaops/internal/platform/db"
	"github.com/pharmaops/pharmaops/internal/platform/storage"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/reports"
	"github.com/pharmaops/pharmaops/internal/sales"
	"github.com/pharmaops/pharmaops/internal/shared"
	"github.com/pharmaops/pharmaops/internal/users"
	"github.com/pharmaops/pharmaops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	uploads := storage.NewLocal(cfg.UploadDir, cfg.UploadMaxBytes)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger, inventory.ServiceConfig{
		InvoiceMaxAttempts:  cfg.InvoiceMaxAttempts,
		DefaultReorderLevel: cfg.LowStockThreshold,
	})
	creditService := credits.NewService(credits.NewRepository(pool), auditLogger, logger)
	expenseService := expenses.NewService(expenses.NewRepository(pool), auditLogger, logger)
	reportService := reports.NewService(
		reports.NewRepository(pool),
		inventoryService,
		creditService,
		reports.NewCache(redisClient, cfg.ReportCacheTTL),
		logger,
	).WithExpenses(expenseService)
	salesService := sales.NewService(sales.NewRepository(pool), sales.Dependencies{
		Audit:       auditLogger,
		Idempotency: idempotency,
		Invalidator: jobs.WarmingInvalidator{Cache: reportService, Client: jobClient, Logger: logger},
		Metrics:     metrics,
		Logger:      logger,
	})

	customerService := masterdata.NewService(masterdata.Customers, masterdata.NewRepository(pool, masterdata.Customers), auditLogger, logger)
	supplierService := masterdata.NewService(masterdata.Suppliers, masterdata.NewRepository(pool, masterdata.Suppliers), auditLogger, logger)

	userService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(userService, tokens, auth.NewRedisRevocations(redisClient), auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		AuthHandler:      auth.NewHandler(logger, authService, cfg.LoginLimitPerMinute),
		UsersHandler:     users.NewHandler(logger, userService, rbacMiddleware),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		SalesHandler:     sales.NewHandler(logger, salesService, uploads, rbacMiddleware),
		CreditsHandler:   credits.NewHandler(logger, creditService, uploads, rbacMiddleware),
		CustomersHandler: masterdata.NewHandler(logger, customerService, rbacMiddleware),
		SuppliersHandler: masterdata.NewHandler(logger, supplierService, rbacMiddleware),
		ExpensesHandler:  expenses.NewHandler(logger, expenseService, rbacMiddleware),
		ReportsHandler:   reports.NewHandler(logger, reportService, rbacMiddleware),
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
		RBACMiddleware:   rbacMiddleware,
		Readiness: map[string]app.Pinger{
			"postgres": app.PingFunc(pool.Ping),
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
