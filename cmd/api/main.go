package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"

	"github.com/cuotas-app/server/internal/api/handlers"
	"github.com/cuotas-app/server/internal/api/middleware"
	"github.com/cuotas-app/server/internal/archive"
	"github.com/cuotas-app/server/internal/categorize"
	"github.com/cuotas-app/server/internal/gmail"
	fsrepo "github.com/cuotas-app/server/internal/infra/firestore"
	"github.com/cuotas-app/server/internal/importer"
	"github.com/cuotas-app/server/internal/jobs"
	"github.com/cuotas-app/server/internal/jobs/inmemory"
	"github.com/cuotas-app/server/internal/logger"
)

func main() {
	var (
		port      = flag.String("port", "8080", "HTTP server port")
		projectID = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
		bucket    = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for raw email archives (or set GCS_BUCKET env)")
	)
	flag.Parse()

	log := logger.New()

	if *projectID == "" {
		log.Fatal().Msg("No GCP project configured - set -project or GOOGLE_CLOUD_PROJECT")
	}

	ctx := context.Background()

	fsClient, err := fsrepo.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	defer fsClient.Close()

	transactions := fsrepo.NewTransactionRepository(fsClient)
	quotaRepo := fsrepo.NewQuotaRepository(fsClient)
	periods := fsrepo.NewBillingPeriodRepository(fsClient)
	tokens := fsrepo.NewTokenRepository(fsClient)

	source := gmail.NewSource(gmail.Config{
		ClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		ClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
	}, tokens)

	importerOpts := []importer.Option{}
	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - raw email archiving is disabled")
	} else {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcsClient.Close()
		importerOpts = append(importerOpts, importer.WithArchiver(archive.NewGCSArchiver(gcsClient, *bucket)))
	}

	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		log.Warn().Msg("No Gemini API key configured - category suggestions are disabled")
	} else {
		suggester, err := categorize.NewGeminiSuggester(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create category suggester")
		}
		importerOpts = append(importerOpts, importer.WithCategorizer(suggester))
	}

	imp := importer.New(source, transactions, periods, fsrepo.NewQuotaInitializer(transactions, quotaRepo), importerOpts...)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		importJob, ok := job.(*jobs.ImportJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		jobLog := log.With().
			Str("job_id", importJob.JobID).
			Str("credit_card_id", importJob.CreditCardID).
			Logger()
		jobLog.Info().Msg("Processing import job")

		result, err := imp.Import(logger.WithContext(ctx, jobLog), importJob.UserID, importJob.CreditCardID)
		if err != nil {
			jobLog.Error().Err(err).Msg("Import job failed")
			if errors.Is(err, importer.ErrReauthorizationRequired) {
				// Retrying cannot help until the user reconnects Gmail.
				return fmt.Errorf("%w: %w", jobs.ErrPermanent, err)
			}
			return err
		}

		jobLog.Info().
			Int("imported", result.ImportedCount).
			Int("quotas_created", result.QuotasCreated).
			Int("orphaned", result.OrphanedCount).
			Msg("Import job completed")
		return nil
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	cardsHandler := handlers.NewCardsHandler(imp, transactions, quotaRepo, periods, log)
	jobsHandler := handlers.NewJobsHandler(jobQueue, jobStore, log)

	mux := http.NewServeMux()

	// Import and reconciliation
	mux.HandleFunc("POST /api/cards/{cardID}/transactions/import", cardsHandler.ImportTransactions)
	mux.HandleFunc("GET /api/cards/{cardID}/transactions/orphaned", cardsHandler.OrphanedTransactions)

	// Installments
	mux.HandleFunc("POST /api/cards/{cardID}/transactions/{txID}/quotas/split", cardsHandler.SplitQuotas)
	mux.HandleFunc("POST /api/cards/{cardID}/quotas/{txID}/{quotaID}/pay", cardsHandler.PayQuota)

	// Manual transactions
	mux.HandleFunc("POST /api/cards/{cardID}/transactions/manual", cardsHandler.CreateManualTransaction)
	mux.HandleFunc("PUT /api/cards/{cardID}/transactions/manual/{txID}", cardsHandler.UpdateManualTransaction)
	mux.HandleFunc("DELETE /api/cards/{cardID}/transactions/manual/{txID}", cardsHandler.DeleteManualTransaction)

	// Billing periods
	mux.HandleFunc("POST /api/cards/{cardID}/billing-periods", cardsHandler.CreateBillingPeriod)
	mux.HandleFunc("GET /api/cards/{cardID}/billing-periods", cardsHandler.ListBillingPeriods)

	// Reporting
	mux.HandleFunc("GET /api/cards/{cardID}/quotas/monthly-sum", cardsHandler.MonthlySum)
	mux.HandleFunc("GET /api/cards/{cardID}/stats/monthly", cardsHandler.MonthlyStats)
	mux.HandleFunc("GET /api/cards/{cardID}/stats/debt", cardsHandler.DebtSummary)

	// Async import jobs
	mux.HandleFunc("POST /api/import-jobs", jobsHandler.EnqueueImport)
	mux.HandleFunc("GET /api/import-jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/import-jobs/{jobID}", jobsHandler.GetJob)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
