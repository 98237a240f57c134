package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"encore/cmd/worker/jobs"
	"encore/internal/config"
	"encore/internal/consumers"
	"encore/internal/logger"
	"encore/internal/outbox"
)

// The worker process runs the three background halves of the saga: the event
// consumers, the outbox dispatcher, and the hold expiration sweep.
func main() {
	log.Println("Starting worker service...")

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	cfg.NATS.ClientID = "encore-worker"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		log.Fatalf("Failed to create consumer service: %v", err)
	}

	if err := consumerService.Start(); err != nil {
		log.Fatalf("Failed to start consumers: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := outbox.NewDispatcher(
		consumerService.Repos().Outbox,
		consumerService.NATS(),
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxMaxAttempts,
	)
	go dispatcher.Run(ctx)

	expirationJob := jobs.NewHoldExpirationJob(consumerService.Services().Orders, cfg.HoldTTL)
	expirationJob.Start(ctx)

	log.Println("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker service...")

	expirationJob.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Worker service stopped")
}
