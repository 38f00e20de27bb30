package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	_ "github.com/lib/pq"
	"google.golang.org/genai"

	"github.com/dvloznov/wealth-tracker/internal/api/handlers"
	"github.com/dvloznov/wealth-tracker/internal/api/middleware"
	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/blobstore"
	"github.com/dvloznov/wealth-tracker/internal/config"
	"github.com/dvloznov/wealth-tracker/internal/events"
	eventskafka "github.com/dvloznov/wealth-tracker/internal/events/kafka"
	eventsmem "github.com/dvloznov/wealth-tracker/internal/events/memory"
	"github.com/dvloznov/wealth-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
	"github.com/dvloznov/wealth-tracker/internal/logger"
	"github.com/dvloznov/wealth-tracker/internal/receipts"
	"github.com/dvloznov/wealth-tracker/internal/storage"
	storagemem "github.com/dvloznov/wealth-tracker/internal/storage/memory"
	"github.com/dvloznov/wealth-tracker/internal/storage/postgres"
	"github.com/dvloznov/wealth-tracker/internal/worker"
)

func main() {
	var (
		envFile = flag.String("env", "", "Path to .env file (optional)")
		port    = flag.String("port", "", "HTTP server port (overrides PORT env)")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Persistence: Postgres when configured, in-memory otherwise.
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
		log.Info().Msg("Using Postgres store")
	} else {
		store = storagemem.NewStore()
		log.Warn().Msg("No DATABASE_URL configured - using in-memory store")
	}

	// Event publishing: Kafka when configured, in-memory otherwise.
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = eventskafka.NewPublisher(cfg.Kafka.Brokers)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Using Kafka publisher")
	} else {
		publisher = eventsmem.NewPublisher()
		log.Warn().Msg("No KAFKA_BROKERS configured - using in-memory publisher")
	}
	defer publisher.Close()

	ldg := ledger.New(store, publisher, log)
	authSvc := auth.NewService(store, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	// Receipt scanning: requires Gemini credentials.
	var scanner *receipts.Scanner
	if cfg.Gemini.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      cfg.Gemini.APIKey,
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create genai client")
		}
		mapping, err := receipts.LoadCategoryMapping()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load category mapping")
		}
		scanner = receipts.NewScanner(receipts.NewGenAIInvoker(client, cfg.Gemini.Model), mapping, log)
	} else {
		log.Warn().Msg("No GEMINI_API_KEY configured - receipt scanning disabled")
	}

	// Receipt image storage: GCS when configured, in-memory otherwise.
	var blobs blobstore.Store
	if cfg.GCS.Bucket != "" {
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcsClient.Close()
		blobs = blobstore.NewGCSStore(gcsClient, cfg.GCS.Bucket)
	} else {
		blobs = blobstore.NewMemoryStore()
		log.Warn().Msg("No GCS_BUCKET configured - receipt images held in memory")
	}

	// Recurring transaction processing runs in-process: the scanner enqueues
	// due transactions and the queue workers materialize occurrences.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, worker.RecurringHandler(store, ldg, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scanLoop := worker.NewRecurringScanner(store, jobQueue, log, cfg.Worker.PollInterval, cfg.Worker.BatchSize)
	go func() {
		if err := scanLoop.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error().Err(err).Msg("Recurring scanner stopped with error")
		}
	}()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authSvc, log)
	accountsHandler := handlers.NewAccountsHandler(ldg, log)
	transactionsHandler := handlers.NewTransactionsHandler(ldg, log)
	budgetsHandler := handlers.NewBudgetsHandler(store, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	var receiptsHandler *handlers.ReceiptsHandler
	if scanner != nil {
		receiptsHandler = handlers.NewReceiptsHandler(scanner, blobs, log)
	}

	// Create router
	mux := http.NewServeMux()

	// Auth endpoints (public)
	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.Register(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.Login(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Authenticated endpoints
	protected := http.NewServeMux()

	protected.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			accountsHandler.CreateAccount(w, r)
		case http.MethodGet:
			accountsHandler.ListAccounts(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	protected.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	protected.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		txID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if txID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.GetTransaction(w, r, txID)
		case http.MethodPut:
			transactionsHandler.UpdateTransaction(w, r, txID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	protected.HandleFunc("/api/budget", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			budgetsHandler.GetBudget(w, r)
		case http.MethodPut, http.MethodPost:
			budgetsHandler.UpsertBudget(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	if receiptsHandler != nil {
		protected.HandleFunc("/api/receipts/scan", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				receiptsHandler.ScanReceipt(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	protected.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	protected.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.Handle("/api/", authSvc.Middleware(protected))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
