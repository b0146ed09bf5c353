package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/api_gateway"
	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/cachesync"
	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/data/mongo"
	"github.com/bytebank-ledger/internal/data/postgres"
	"github.com/bytebank-ledger/internal/ledger"
	"github.com/bytebank-ledger/internal/logger"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/gotrue"
	"github.com/bytebank-ledger/internal/platform/messaging/consumers"
	"github.com/bytebank-ledger/internal/platform/messaging/producers"
	"github.com/bytebank-ledger/internal/platform/persistence"
	"github.com/bytebank-ledger/internal/platform/storage"
	"github.com/bytebank-ledger/internal/platform/workerpool"
	"github.com/bytebank-ledger/internal/session"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	if cfg.Postgres.MigrationsPath != "" {
		if err := persistence.RunMigrations(log, cfg.Postgres.URL, cfg.Postgres.MigrationsPath); err != nil {
			log.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	readCache, markers, err := cache.New(appCtx, &cfg.Cache, log)
	if err != nil {
		log.Error("Failed to initialize cache", "error", err)
		os.Exit(1)
	}

	receiptStore, err := storage.NewReceiptStore(appCtx, &cfg.Receipts, log)
	if err != nil {
		log.Error("Failed to initialize receipt storage", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionStore := postgres.NewTransactionStore(log, postgresDB)
	accountStore := postgres.NewAccountStore(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	activityRepo := mongo.NewActivityRepository(log, mongoDB.Database())

	// Initialize services
	transactions := ledger.NewTransactionRepository(log, postgresDB, transactionStore, accountStore, outboxRepo,
		receiptStore, readCache, &cfg.Receipts, cfg.Cache.TTL)
	provisioner := ledger.NewAccountProvisioner(log, postgresDB, accountStore, outboxRepo, readCache,
		&cfg.Provisioning, cfg.Cache.TTL)
	reports := ledger.NewReports(log, transactionStore, readCache, cfg.Cache.TTL)
	activity := ledger.NewActivity(log, activityRepo)

	pool, err := workerpool.New(cfg.WorkerPool.Size, log)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	identityClient := gotrue.NewClient(&cfg.Identity, log)
	registry := session.NewRegistry(log, func() *session.Coordinator {
		return session.NewCoordinator(log, identityClient.NewSession(), provisioner, pool, markers, readCache,
			&cfg.Cache, &cfg.Provisioning)
	}, cfg.Session.IdleTimeout)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Transactions: transactions,
		Accounts:     provisioner,
		Reports:      reports,
		Activity:     activity,
		Sessions:     service.NewSessionStore(registry),
		Verifier:     identityClient.Verifier(),
	})
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 2)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Run(appCtx, cfg.Session.SweepInterval)
	}()

	// Other replicas write through their own caches; their events drop our stale entries
	var syncConsumer *consumers.KafkaConsumer
	var dlqProducer *producers.DLQProducer
	if cfg.Kafka.CacheSyncEnabled {
		dlqProducer, err = producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
		if err != nil {
			log.Error("Failed to initialize DLQ Kafka producer", "error", err)
			os.Exit(1)
		}

		// Every replica needs every event, so each one joins its own group
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
		syncConsumer = consumers.NewKafkaConsumer(log, &cfg.Kafka, groupID, cachesync.DeadLetterTo(dlqProducer))
		syncHandler := cachesync.NewHandler(log, readCache)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Starting cache sync consumer", "topic", cfg.Kafka.LedgerEventsTopic, "group", groupID)
			if err := syncConsumer.Run(appCtx, syncHandler.Handle); err != nil {
				errChan <- fmt.Errorf("cache sync consumer error: %w", err)
			}
		}()
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the background work they feed
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Cancel the application context
	cancelAppCtx()
	wg.Wait()

	// Let in-flight provisioning finish
	if err = pool.Shutdown(cfg.Provisioning.TaskTimeout); err != nil {
		log.Error("Error shutting down worker pool", "error", err)
	}

	if syncConsumer != nil {
		if err = syncConsumer.Close(); err != nil {
			log.Error("Error closing Kafka consumer", "error", err)
		}
	}
	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if closer, ok := receiptStore.(io.Closer); ok {
		if err = closer.Close(); err != nil {
			log.Error("Error closing receipt storage", "error", err)
		}
	}

	if err = readCache.Close(); err != nil {
		log.Error("Error closing cache", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
