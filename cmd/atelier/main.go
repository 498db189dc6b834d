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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-ops/atelier-ops/internal/app"
	"github.com/atelier-ops/atelier-ops/internal/audit"
	"github.com/atelier-ops/atelier-ops/internal/auth"
	"github.com/atelier-ops/atelier-ops/internal/deals"
	"github.com/atelier-ops/atelier-ops/internal/payledger"
	"github.com/atelier-ops/atelier-ops/internal/platform/db"
	"github.com/atelier-ops/atelier-ops/internal/projects"
	"github.com/atelier-ops/atelier-ops/internal/shared"
	"github.com/atelier-ops/atelier-ops/internal/team"
	"github.com/atelier-ops/atelier-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	recorder := shared.NewRecorder(shared.NewPGAuditStore(pool), logger)
	defer recorder.Drain()

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	denylist := auth.NewDenylist(redisClient)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens, denylist)
	authMW := auth.NewMiddleware(logger, tokens, denylist)
	authHandler := auth.NewHandler(logger, authService, authMW)

	queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	dealsRepo := deals.NewRepository(pool)
	dealsService := deals.NewService(dealsRepo, recorder, queue, logger)
	dealsHandler := deals.NewHandler(logger, dealsService, authMW)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, recorder, logger)
	projectsHandler := projects.NewHandler(logger, projectsService, authMW)

	ledgerRepo := payledger.NewRepository(pool)
	ledgerService := payledger.NewService(ledgerRepo, recorder, logger)
	summaryCache := payledger.NewSummaryCache(redisClient, ledgerRepo, logger)
	ledgerHandler := payledger.NewHandler(logger, ledgerService, summaryCache, authMW)

	teamRepo := team.NewRepository(pool)
	teamService := team.NewService(teamRepo, recorder, ledgerService, logger, cfg.PINCost)
	teamHandler := team.NewHandler(logger, teamService, authMW)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, authMW)

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		AuthMW:    authMW,
		Auth:      authHandler,
		Deals:     dealsHandler,
		Projects:  projectsHandler,
		Team:      teamHandler,
		PayLedger: ledgerHandler,
		Audit:     auditHandler,
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
