package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/employee-loan-ledger/internal/config"
	"github.com/employee-loan-ledger/internal/data/postgres"
	"github.com/employee-loan-ledger/internal/logger"
	"github.com/employee-loan-ledger/internal/platform/messaging/producers"
	"github.com/employee-loan-ledger/internal/platform/persistence"
	"github.com/employee-loan-ledger/internal/relay"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("outbox_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Outbox Relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize database with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize outbox repository
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	// Initialize Kafka event producer
	eventProducer, err := producers.NewLedgerEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka DLQ producer; nil when DLQTopic is not configured
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	var dlq producers.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	// Initialize the outbox poller
	publisher := relay.NewKafkaEventPublisher(outboxRepo, eventProducer, log)
	poller, err := relay.NewPoller(&cfg.Outbox, outboxRepo, publisher, dlq, log)
	if err != nil {
		log.Error("Failed to initialize outbox poller", "error", err)
		os.Exit(1)
	}

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for the poller to finish its current batch
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Outbox poller stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Release the worker pool
	poller.Shutdown()

	// Close Kafka producers
	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing ledger event Kafka producer", "error", err)
	}
	if dlqErr := dlqProducer.Close(); dlqErr != nil {
		log.Error("Error closing DLQ Kafka producer", "error", dlqErr)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Final status
	if serviceErr != nil {
		log.Error("Outbox Relay shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Outbox Relay shutdown completed with errors")
	} else {
		log.Info("Outbox Relay shutdown completed successfully")
	}
}
