// Command export-stats writes per-period spending totals for one card into
// BigQuery for ad-hoc analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/cuotas-app/server/internal/export"
	fsrepo "github.com/cuotas-app/server/internal/infra/firestore"
	"github.com/cuotas-app/server/internal/logger"
	"github.com/cuotas-app/server/internal/stats"
)

func main() {
	log := logger.New()

	projectID := flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
	userID := flag.String("user", "", "User to export (required)")
	cardID := flag.String("card", "", "Credit card to export (required)")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: --project or GOOGLE_CLOUD_PROJECT is required")
	}
	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	if *cardID == "" {
		log.Fatal().Msg("Error: --card is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	fsClient, err := fsrepo.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	defer fsClient.Close()

	bqClient, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	transactionRepo := fsrepo.NewTransactionRepository(fsClient)
	quotaRepo := fsrepo.NewQuotaRepository(fsClient)
	periodRepo := fsrepo.NewBillingPeriodRepository(fsClient)

	periods, err := periodRepo.ListDescending(ctx, *userID, *cardID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list billing periods")
	}
	transactions, err := transactionRepo.ListActive(ctx, *userID, *cardID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	quotas, err := quotaRepo.ListForCard(ctx, *userID, *cardID, transactions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list quotas")
	}

	sums := stats.MonthlySums(periods, quotas)
	if len(sums) == 0 {
		log.Info().Msg("No period totals to export")
		return
	}

	exporter := export.NewExporter(bqClient)
	if err := exporter.ExportPeriodSums(ctx, *userID, *cardID, sums); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Exported %d period totals.\n", len(sums))
}
