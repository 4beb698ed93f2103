// Command worker runs email imports outside the API server, either once or
// on a fixed interval. A Cloud Scheduler or cron entry per card keeps
// transactions current without anyone pressing the import button.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"

	"github.com/cuotas-app/server/internal/archive"
	"github.com/cuotas-app/server/internal/categorize"
	"github.com/cuotas-app/server/internal/gmail"
	fsrepo "github.com/cuotas-app/server/internal/infra/firestore"
	"github.com/cuotas-app/server/internal/importer"
	"github.com/cuotas-app/server/internal/logger"
)

func main() {
	var (
		projectID = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
		bucket    = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for raw email archives (or set GCS_BUCKET env)")
		userID    = flag.String("user", "", "User to import for")
		cardID    = flag.String("card", "", "Credit card to import for")
		interval  = flag.Duration("interval", 0, "Re-run the import on this interval (0 runs once)")
	)
	flag.Parse()

	log := logger.New()

	if *projectID == "" {
		log.Fatal().Msg("No GCP project configured - set -project or GOOGLE_CLOUD_PROJECT")
	}
	if *userID == "" || *cardID == "" {
		log.Fatal().Msg("Both -user and -card are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	opts := []importer.Option{}
	if *bucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcsClient.Close()
		opts = append(opts, importer.WithArchiver(archive.NewGCSArchiver(gcsClient, *bucket)))
	}

	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		suggester, err := categorize.NewGeminiSuggester(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create category suggester")
		}
		opts = append(opts, importer.WithCategorizer(suggester))
	}

	imp := importer.New(source, transactions, periods, fsrepo.NewQuotaInitializer(transactions, quotaRepo), opts...)
	runLog := logger.WithCard(log, *userID, *cardID)

	run := func() {
		result, err := imp.Import(logger.WithContext(ctx, runLog), *userID, *cardID)
		if err != nil {
			if errors.Is(err, importer.ErrReauthorizationRequired) {
				runLog.Error().Msg("Gmail token expired - user must reconnect their email account")
				return
			}
			runLog.Error().Err(err).Msg("Import failed")
			return
		}
		runLog.Info().
			Int("imported", result.ImportedCount).
			Int("quotas_created", result.QuotasCreated).
			Int("orphaned", result.OrphanedCount).
			Msg("Import completed")
	}

	log.Info().Msg("Starting import worker")
	run()

	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			run()
		case <-quit:
			log.Info().Msg("Shutting down import worker")
			cancel()
			return
		}
	}
}
