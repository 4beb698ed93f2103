// Command sync-notion pushes per-period spending totals for one card into a
// Notion database, one row per period and currency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	fsrepo "github.com/cuotas-app/server/internal/infra/firestore"
	"github.com/cuotas-app/server/internal/logger"
	"github.com/cuotas-app/server/internal/notionsync"
	"github.com/cuotas-app/server/internal/stats"
)

func main() {
	log := logger.New()

	projectID := flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
	userID := flag.String("user", "", "User to sync (required)")
	cardID := flag.String("card", "", "Credit card to sync (required)")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (required)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
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
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("user_id", *userID).
		Str("credit_card_id", *cardID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	fsClient, err := fsrepo.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	defer fsClient.Close()

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
		log.Info().Msg("No period totals to sync")
		return
	}

	notionClient := notionsync.NewNotionClient(*notionToken)
	result, err := notionsync.SyncPeriodSums(ctx, notionClient, *notionDBID, sums, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated.\n", result.Created, result.Updated)
}
