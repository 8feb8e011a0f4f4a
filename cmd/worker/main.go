package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vhorak/payflow/internal/application/orchestrator"
	apppayment "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/bootstrap"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/infrastructure/providers"
	infraRedis "github.com/vhorak/payflow/internal/infrastructure/redis"
	"github.com/vhorak/payflow/internal/repository/postgres"
	"github.com/vhorak/payflow/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "payflow-worker", "payflow_worker")
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Command consumers (read step commands from the Redis stream).
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		consumerName := fmt.Sprintf("%s-%d", cfg.InstanceID, i)
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			infraRedis.CommandStream,
			cfg.Worker.ConsumerGroup,
			consumerName,
			cfg.Worker.BatchSize,
			cfg.Worker.BlockDuration,
		)
		if err := consumer.CreateGroup(gCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
		}
		g.Go(func() error {
			return runCommandConsumer(gCtx, app, consumer, producer, orch)
		})
	}

	// 2. Pending reclaimer (takes over commands a dead consumer read but
	// never acked).
	reclaimConsumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.CommandStream,
		cfg.Worker.ConsumerGroup,
		cfg.InstanceID+"-reclaim",
		cfg.Worker.BatchSize,
		cfg.Worker.BlockDuration,
	)
	g.Go(func() error {
		return runPendingReclaimer(gCtx, app, reclaimConsumer, producer, orch)
	})

	// 3. Deadline sweeper (declines expired manual reviews, fails stuck
	// steps, re-drives stalled compensations).
	g.Go(func() error {
		return runTimeoutSweeper(gCtx, app, orch)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	app.Logger.Info().
		Str("stream", infraRedis.CommandStream).
		Str("group", cfg.Worker.ConsumerGroup).
		Int("concurrency", concurrency).
		Msg("Worker started, listening for commands...")

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runCommandConsumer(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	producer *infraRedis.CommandProducer,
	orch *orchestrator.Orchestrator,
) error {
	logger := app.Logger
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				cmd, attempt, err := infraRedis.DecodeCommand(msg)
				if err != nil {
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Undecodable command parked in DLQ")
					producer.PublishToDLQ(ctx, saga.Command{}, err.Error())
					consumer.Ack(ctx, msg.ID)
					continue
				}

				handleCommand(ctx, app, consumer, producer, orch, logger, msg.ID, cmd, attempt)
			}
		}
	}
}

// handleCommand processes one command under a per-correlation lock. A
// failed command is re-published with an incremented attempt count, so
// processing stays at-least-once; once max_deliveries is reached the command
// is parked in the DLQ instead of hot-looping forever.
func handleCommand(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	producer *infraRedis.CommandProducer,
	orch *orchestrator.Orchestrator,
	logger zerolog.Logger,
	messageID string,
	cmd saga.Command,
	attempt int,
) {
	lock := infraRedis.NewDistributedLock(app.Redis, "saga:"+cmd.CorrelationID.String(), app.Config.Saga.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		// Another worker holds this saga; put the command back. Lock
		// contention is not a failed delivery, the attempt count carries
		// over unchanged.
		logger.Debug().Str("correlation_id", cmd.CorrelationID.String()).Msg("Saga locked elsewhere, requeueing")
		producer.Requeue(ctx, cmd, attempt)
		consumer.Ack(ctx, messageID)
		return
	}
	defer lock.Release(ctx)

	start := time.Now()
	if err := orch.HandleCommand(ctx, cmd); err != nil {
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CommandStream, "error").Inc()
		if attempt+1 >= app.Config.Worker.MaxDeliveries {
			logger.Error().Err(err).
				Str("correlation_id", cmd.CorrelationID.String()).
				Str("kind", string(cmd.Kind)).
				Int("attempt", attempt+1).
				Msg("Command exhausted deliveries, parked in DLQ")
			producer.PublishToDLQ(ctx, cmd, err.Error())
		} else {
			logger.Error().Err(err).
				Str("correlation_id", cmd.CorrelationID.String()).
				Str("kind", string(cmd.Kind)).
				Int("attempt", attempt+1).
				Msg("Command failed, requeueing")
			producer.Requeue(ctx, cmd, attempt+1)
		}
		consumer.Ack(ctx, messageID)
		return
	}

	app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CommandStream, "success").Inc()
	app.Metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.CommandStream).Observe(time.Since(start).Seconds())
	consumer.Ack(ctx, messageID)
}

// runPendingReclaimer periodically claims commands left pending by a
// consumer that died before acking, and processes them here. The delivery
// attempt count travels on the message, so a reclaimed command that keeps
// failing still ends up in the DLQ.
func runPendingReclaimer(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	producer *infraRedis.CommandProducer,
	orch *orchestrator.Orchestrator,
) error {
	logger := app.Logger
	interval := app.Config.Worker.ClaimInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	minIdle := app.Config.Worker.ClaimMinIdle
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := "0-0"
		for {
			messages, next, err := consumer.Claim(ctx, minIdle, start)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to claim pending messages")
				break
			}
			for _, msg := range messages {
				cmd, attempt, err := infraRedis.DecodeCommand(msg)
				if err != nil {
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Undecodable command parked in DLQ")
					producer.PublishToDLQ(ctx, saga.Command{}, err.Error())
					consumer.Ack(ctx, msg.ID)
					continue
				}
				handleCommand(ctx, app, consumer, producer, orch, logger, msg.ID, cmd, attempt)
			}
			if len(messages) == 0 || next == "0-0" {
				break
			}
			start = next
		}
	}
}

// runTimeoutSweeper periodically expires overdue saga deadlines. The sweep
// lock keeps only one worker instance sweeping at a time.
func runTimeoutSweeper(ctx context.Context, app *bootstrap.App, orch *orchestrator.Orchestrator) error {
	interval := app.Config.Saga.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, "saga-sweeper", app.Config.Saga.LockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil || !acquired {
			continue
		}

		if err := orch.SweepTimeouts(ctx, app.Config.Saga.SweepBatchSize); err != nil {
			app.Logger.Error().Err(err).Msg("Timeout sweep failed")
		}
		lock.Release(ctx)
	}
}
