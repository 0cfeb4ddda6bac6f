package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paymentrecon/internal/audit"
	"github.com/cassiomorais/paymentrecon/internal/bootstrap"
	infraRedis "github.com/cassiomorais/paymentrecon/internal/infrastructure/redis"
	"github.com/cassiomorais/paymentrecon/internal/repository/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paymentrecon-worker", "paymentrecon_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.ReconciliationStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	auditor := audit.NewAuditor(consumer, postgres.NewPaymentRepository(app.Pool), workerCfg.ClaimMinIdle, app.Logger, app.Metrics)

	app.Logger.Info().
		Str("stream", infraRedis.ReconciliationStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for reconciliation events...")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditor.Run(gCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
