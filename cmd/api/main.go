package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vhorak/payflow/internal/application/orchestrator"
	apppayment "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/bootstrap"
	"github.com/vhorak/payflow/internal/controller"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/infrastructure/providers"
	infraRedis "github.com/vhorak/payflow/internal/infrastructure/redis"
	"github.com/vhorak/payflow/internal/repository/postgres"
	"github.com/vhorak/payflow/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "payflow-api", "payflow")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Storage and transport ---
	eventStore := postgres.NewEventStore(app.Pool)
	sagaRepo := postgres.NewSagaRepository(app.Pool)
	ledgerRepo := postgres.NewLedgerRepository(app.Pool)
	producer := infraRedis.NewCommandProducer(app.Redis)

	// --- Ports and handlers ---
	ports := providers.Build(&cfg.Providers, ledgerRepo, app.Logger)
	policy := saga.RiskPolicy{
		AcceptBelow:  cfg.Saga.RiskAcceptBelow,
		MonitorBelow: cfg.Saga.RiskMonitorBelow,
		BlockAt:      cfg.Saga.RiskBlockAt,
	}
	timeouts := saga.Timeouts{
		Step:            cfg.Saga.StepTimeout,
		Review:          cfg.Saga.ReviewTimeout,
		SettlementDelay: cfg.Saga.SettlementDelay,
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = uint(cfg.Saga.StepMaxRetries)
	retryCfg.InitialDelay = cfg.Saga.StepRetryDelay

	handlers := orchestrator.Handlers{
		Screen:  apppayment.NewScreenHandler(eventStore, ports.Compliance, policy, retryCfg, app.Logger),
		Reserve: apppayment.NewReserveFundsHandler(eventStore, ports.Funds, retryCfg, app.Logger),
		Journal: apppayment.NewJournalHandler(eventStore, ports.Ledger, retryCfg, app.Logger),
		Settle:  apppayment.NewSettleHandler(eventStore, ports.Settlement, retryCfg, app.Logger),
		Notify:  apppayment.NewNotifyHandler(eventStore, ports.Notifier, retryCfg, app.Logger),
		Cancel:  apppayment.NewCancelHandler(eventStore, retryCfg, app.Logger),
	}
	orch := orchestrator.New(
		sagaRepo, eventStore, producer, handlers,
		ports.Funds, ports.Ledger,
		policy, timeouts, retryCfg, app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:         app.Pool,
		RedisClient:  app.Redis,
		Orchestrator: orch,
		Payments:     apppayment.NewGetPaymentQuery(eventStore),
		Metrics:      app.Metrics,
		CORSConfig:   cfg.Server.CORS,
		RateLimit:    cfg.Server.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
