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

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/accounts"
	"github.com/linfan/backend/internal/auth"
	"github.com/linfan/backend/internal/cards"
	"github.com/linfan/backend/internal/categories"
	"github.com/linfan/backend/internal/config"
	"github.com/linfan/backend/internal/dashboard"
	"github.com/linfan/backend/internal/directory"
	"github.com/linfan/backend/internal/observability"
	"github.com/linfan/backend/internal/platform/cache"
	"github.com/linfan/backend/internal/platform/db"
	"github.com/linfan/backend/internal/repository"
	"github.com/linfan/backend/internal/router"
	"github.com/linfan/backend/internal/stocks"
	"github.com/linfan/backend/internal/transactions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Cannot reach Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	memberRepo := repository.NewMemberRepo(pool)
	accountRepo := repository.NewAccountRepo(pool)
	cardRepo := repository.NewCardRepo(pool)
	installmentRepo := repository.NewInstallmentRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	categoryRepo := repository.NewCategoryRepo(pool)
	stockRepo := repository.NewStockRepo(pool)

	// Membership recency is written by a River worker off the request path.
	workers := river.NewWorkers()
	river.AddWorker(workers, access.NewTouchMembershipWorker(memberRepo))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.TouchWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	grants := access.NewRedisGrants(rdb, cfg.EntryGrantTTL)
	users := auth.NewService(userRepo)
	gate := access.NewGate(auth.NewJWTResolver(cfg.JWTSecret), users, memberRepo, grants,
		access.NewQueueToucher(riverClient, logger), logger)
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is empty; caller tokens are decoded without signature verification")
	}

	engine := transactions.NewEngine(transactions.Deps{
		Pool:         pool,
		Transactions: transactionRepo,
		Accounts:     accountRepo,
		Cards:        cardRepo,
		Installments: installmentRepo,
		Categories:   categoryRepo,
		Metrics:      metrics,
	})
	directorySvc := directory.NewService(pool, ledgerRepo, memberRepo, userRepo,
		directory.NewPasswordChecker(cfg.LedgerPasswordMode), grants, logger)

	handler := router.New(router.Options{
		Logger:         logger,
		Gate:           gate,
		Metrics:        metrics,
		Health:         pool.Ping,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerMinute:  cfg.RateLimitPerMinute,
		RequestTimeout: cfg.AppRequestTimeout,
		Production:     cfg.IsProduction(),
	}, router.Handlers{
		Users:        auth.NewHandler(logger),
		Ledgers:      directory.NewHandler(directorySvc, logger),
		Accounts:     accounts.NewHandler(accounts.NewService(pool, accountRepo), logger),
		Cards:        cards.NewHandler(cards.NewService(pool, cardRepo, accountRepo, transactionRepo, installmentRepo, metrics), logger),
		Transactions: transactions.NewHandler(engine, logger),
		Categories:   categories.NewHandler(categories.NewService(pool, categoryRepo), logger),
		Stocks:       stocks.NewHandler(stocks.NewService(pool, stockRepo, accountRepo, transactionRepo, metrics), logger),
		Dashboard:    dashboard.NewHandler(dashboard.NewService(accountRepo, cardRepo, transactionRepo), logger),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.AppAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown failed", "error", err)
	}
}
