package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/dvloznov/wealth-tracker/internal/config"
	"github.com/dvloznov/wealth-tracker/internal/events"
	eventskafka "github.com/dvloznov/wealth-tracker/internal/events/kafka"
	eventsmem "github.com/dvloznov/wealth-tracker/internal/events/memory"
	"github.com/dvloznov/wealth-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
	"github.com/dvloznov/wealth-tracker/internal/logger"
	"github.com/dvloznov/wealth-tracker/internal/mailer"
	"github.com/dvloznov/wealth-tracker/internal/storage"
	storagemem "github.com/dvloznov/wealth-tracker/internal/storage/memory"
	"github.com/dvloznov/wealth-tracker/internal/storage/postgres"
	"github.com/dvloznov/wealth-tracker/internal/worker"
)

// Standalone background worker: scans for due recurring transactions,
// materializes their occurrences, and sends budget alert emails. Run this
// instead of relying on the in-process loop of the API server when the two
// should scale independently.
func main() {
	var envFile = flag.String("env", "", "Path to .env file (optional)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store storage.Store
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = postgres.NewStore(db)
	} else {
		store = storagemem.NewStore()
		log.Warn().Msg("No DATABASE_URL configured - using in-memory store")
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = eventskafka.NewPublisher(cfg.Kafka.Brokers)
	} else {
		publisher = eventsmem.NewPublisher()
	}
	defer publisher.Close()

	ldg := ledger.New(store, publisher, log)

	var sender mailer.Sender
	if cfg.SMTP.Host != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		sender = mailer.NopSender{}
		log.Warn().Msg("No SMTP_HOST configured - budget alerts disabled")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	log.Info().Msg("Starting worker service")

	if err := jobQueue.Start(ctx, worker.RecurringHandler(store, ldg, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scanLoop := worker.NewRecurringScanner(store, jobQueue, log, cfg.Worker.PollInterval, cfg.Worker.BatchSize)
	go func() {
		if err := scanLoop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Recurring scanner stopped with error")
		}
	}()

	budgetLoop := worker.NewBudgetChecker(store, sender, log, time.Hour)
	go func() {
		if err := budgetLoop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Budget checker stopped with error")
		}
	}()

	log.Info().Msg("Worker service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
