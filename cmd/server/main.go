// Package main is the entry point for the Hostal fiscal API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hostal/internal/domain/fiscal/allocator"
	"hostal/internal/domain/fiscal/backfill"
	"hostal/internal/domain/fiscal/issuing"
	"hostal/internal/domain/fiscal/lifecycle"
	"hostal/internal/domain/fiscal/resolution"
	"hostal/internal/domain/fiscal/stats"
	"hostal/internal/infrastructure/gateway"
	v1 "hostal/internal/infrastructure/http/v1"
	"hostal/internal/infrastructure/http/v1/handlers"
	"hostal/internal/infrastructure/storage/postgres"
	"hostal/internal/infrastructure/storage/postgres/fiscal_repo"
	"hostal/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using environment")
	}

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting hostal fiscal server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	poolCfg.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(poolCfg.MaxConns)))
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	ledger := fiscal_repo.NewLedgerRepo(txManager)
	resolutionRepo := fiscal_repo.NewResolutionRepo(txManager)

	auditLog, err := postgres.NewAuditLog(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit log", "error", err)
	}

	// --- Domain services ---
	registry := resolution.NewRegistry(resolutionRepo)
	alloc := allocator.NewService(registry, ledger, txManager,
		allocator.WithAuditor(auditLog),
	)
	lc := lifecycle.NewService(ledger, lifecycle.WithAuditor(auditLog))
	bf := backfill.NewService(ledger, registry, backfill.WithAuditor(auditLog))
	st := stats.NewService(ledger, registry)

	gw := gateway.NewClient(gateway.DefaultConfig(
		getEnv("TAX_GATEWAY_URL", "http://localhost:9090"),
		os.Getenv("TAX_GATEWAY_TOKEN"),
	))
	iss := issuing.NewService(alloc, lc, gw)

	// --- HTTP ---
	base := handlers.NewBaseHandler()
	router := v1.NewRouter(log, v1.Handlers{
		Documents:   handlers.NewDocumentHandler(base, alloc, lc, iss, ledger),
		Resolutions: handlers.NewResolutionHandler(base, registry),
		Backfill:    handlers.NewBackfillHandler(base, bf),
		Stats:       handlers.NewStatsHandler(base, st),
		Health:      handlers.NewHealthHandler(pool.Pool),
	})

	addr := ":" + getEnv("PORT", "8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Printf("required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}
