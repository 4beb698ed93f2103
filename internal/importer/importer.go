// Package importer orchestrates the bank-email import run: list candidate
// messages, drop the ones already stored, fetch and extract the rest, and
// persist them in batches. It owns the run's semantics but none of its IO;
// message access and persistence come in through interfaces so the run can
// be driven against Gmail and Firestore in production and against fakes in
// tests.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/extract"
	"github.com/cuotas-app/server/internal/logger"
	"github.com/cuotas-app/server/internal/period"
)

// ErrReauthorizationRequired means the stored email credential is missing or
// can no longer be refreshed. Callers must not retry; the user has to go
// through the OAuth consent flow again.
var ErrReauthorizationRequired = errors.New("email account requires reauthorization")

const (
	// bankSender and bankSubject pin the Gmail search to Banco de Chile
	// purchase notifications.
	bankSender  = "enviodigital@bancochile.cl"
	bankSubject = "compra tarjeta crédito"

	// dedupeChunkSize is the Firestore `in` operator limit.
	dedupeChunkSize = 30
	// persistChunkSize bounds one batched write.
	persistChunkSize = 100
	// fetchConcurrency bounds parallel message downloads within a chunk.
	fetchConcurrency = 8
)

// MessageRef identifies one message in the source mailbox.
type MessageRef struct {
	ID string
}

// Message is a fetched message with its body already decoded to text.
type Message struct {
	ID   string
	Body string
}

// MessageSource lists and fetches bank notification emails for a user.
// Implementations surface ErrReauthorizationRequired when the user's
// credential is absent or refresh fails.
type MessageSource interface {
	List(ctx context.Context, userID, query string) ([]MessageRef, error)
	Fetch(ctx context.Context, userID, messageID string) (*Message, error)
}

// TokenStore persists the Gmail OAuth credential per user.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*domain.EmailToken, error)
	Save(ctx context.Context, userID string, token *domain.EmailToken) error
}

// TransactionStore is the persistence surface the import run needs.
type TransactionStore interface {
	// ExistingIDs reports which of the given IDs already have a live
	// transaction document. Callers chunk IDs before querying.
	ExistingIDs(ctx context.Context, userID, creditCardID string, ids []string) (map[string]struct{}, error)
	// SaveBatch writes transactions in one batched operation keyed by
	// transaction ID, overwriting on repeat.
	SaveBatch(ctx context.Context, userID, creditCardID string, transactions []*domain.Transaction) error
	// ListActive returns all non-deleted transactions for the card.
	ListActive(ctx context.Context, userID, creditCardID string) ([]*domain.Transaction, error)
}

// PeriodLister returns a card's billing periods, most recent first.
type PeriodLister interface {
	ListDescending(ctx context.Context, userID, creditCardID string) ([]*domain.BillingPeriod, error)
}

// QuotaInitializer backfills lump-sum quotas for transactions that have none.
type QuotaInitializer interface {
	InitializeMissing(ctx context.Context, userID, creditCardID string, transactions []*domain.Transaction) (int, error)
}

// Archiver stores raw message bodies for later reprocessing. Optional.
type Archiver interface {
	Archive(ctx context.Context, userID, messageID string, body []byte) error
}

// ExistingLookup resolves which of a chunk of IDs are already stored.
type ExistingLookup func(ctx context.Context, ids []string) (map[string]struct{}, error)

// Dedupe returns the IDs with no stored transaction, preserving input order.
// IDs are checked in chunks of at most 30 per lookup call. Running it twice
// over the same persisted state yields the same answer.
func Dedupe(ctx context.Context, ids []string, lookup ExistingLookup) ([]string, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(ids); start += dedupeChunkSize {
		end := min(start+dedupeChunkSize, len(ids))
		found, err := lookup(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("Dedupe: checking ids [%d:%d]: %w", start, end, err)
		}
		for id := range found {
			existing[id] = struct{}{}
		}
	}

	unseen := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			unseen = append(unseen, id)
		}
	}
	return unseen, nil
}

// BuildQuery returns the Gmail search expression for an import run at now:
// bank sender and subject, restricted to messages after the first day of the
// previous calendar month in Chilean local time.
func BuildQuery(now time.Time) string {
	first := dates.FirstOfMonth(dates.AddMonths(dates.CivilDate(now), -1))
	return fmt.Sprintf("from:%s subject:%s after:%04d/%02d/%02d",
		bankSender, bankSubject, first.Year, first.Month, first.Day)
}

// Result summarizes one import run.
type Result struct {
	ImportedCount   int                   `json:"importedCount"`
	QuotasCreated   int                   `json:"quotasCreated"`
	Orphaned        []*domain.Transaction `json:"orphaned"`
	OrphanedCount   int                   `json:"orphanedCount"`
	SuggestedPeriod *period.Suggestion    `json:"suggestedPeriod"`
}

// CategorySuggester proposes a spending category for a merchant name.
type CategorySuggester interface {
	Suggest(ctx context.Context, merchant string) (string, error)
}

// Importer runs email imports for credit cards.
type Importer struct {
	source       MessageSource
	transactions TransactionStore
	periods      PeriodLister
	quotas       QuotaInitializer
	archive      Archiver          // nil disables archiving
	categorizer  CategorySuggester // nil disables category suggestions
	now          func() time.Time
}

// Option configures optional importer collaborators.
type Option func(*Importer)

// WithArchiver enables raw-body archiving.
func WithArchiver(a Archiver) Option {
	return func(imp *Importer) { imp.archive = a }
}

// WithCategorizer enables category suggestions for imported transactions.
func WithCategorizer(s CategorySuggester) Option {
	return func(imp *Importer) { imp.categorizer = s }
}

// WithClock overrides the time source. Tests use it to pin the search window.
func WithClock(now func() time.Time) Option {
	return func(imp *Importer) { imp.now = now }
}

func New(source MessageSource, transactions TransactionStore, periods PeriodLister, quotas QuotaInitializer, opts ...Option) *Importer {
	imp := &Importer{
		source:       source,
		transactions: transactions,
		periods:      periods,
		quotas:       quotas,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Import runs a full import for one card: list, dedupe, fetch+extract in
// bounded parallel per chunk, persist per chunk, backfill lump-sum quotas,
// and report orphaned transactions. A chunk that fails to persist is logged
// and skipped; chunks already written stay written. The run as a whole only
// fails on listing, dedup, or authorization errors.
func (imp *Importer) Import(ctx context.Context, userID, creditCardID string) (*Result, error) {
	log := logger.WithCard(logger.FromContext(ctx), userID, creditCardID)

	query := BuildQuery(imp.now())
	refs, err := imp.source.List(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("Import: listing messages: %w", err)
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}

	unseen, err := Dedupe(ctx, ids, func(ctx context.Context, chunk []string) (map[string]struct{}, error) {
		return imp.transactions.ExistingIDs(ctx, userID, creditCardID, chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	log.Info().Int("listed", len(ids)).Int("unseen", len(unseen)).Msg("import run starting")

	result := &Result{}
	for start := 0; start < len(unseen); start += persistChunkSize {
		end := min(start+persistChunkSize, len(unseen))
		chunk := unseen[start:end]

		transactions, err := imp.importChunk(ctx, userID, creditCardID, chunk)
		if errors.Is(err, ErrReauthorizationRequired) {
			return nil, err
		}
		if err != nil {
			// Earlier chunks are already committed; rerunning the import
			// dedupes them away and retries only what is missing.
			log.Error().Err(err).Int("chunkStart", start).Msg("chunk failed, continuing")
			continue
		}
		result.ImportedCount += len(transactions)
	}

	active, err := imp.transactions.ListActive(ctx, userID, creditCardID)
	if err != nil {
		return nil, fmt.Errorf("Import: listing transactions: %w", err)
	}

	created, err := imp.quotas.InitializeMissing(ctx, userID, creditCardID, active)
	if err != nil {
		return nil, fmt.Errorf("Import: initializing quotas: %w", err)
	}
	result.QuotasCreated = created

	periods, err := imp.periods.ListDescending(ctx, userID, creditCardID)
	if err != nil {
		return nil, fmt.Errorf("Import: listing billing periods: %w", err)
	}

	report := period.FindOrphans(active, periods)
	result.OrphanedCount = len(report.Orphaned)
	result.Orphaned = report.Orphaned
	if len(result.Orphaned) > 5 {
		result.Orphaned = result.Orphaned[:5]
	}
	result.SuggestedPeriod = report.SuggestedPeriod

	log.Info().
		Int("imported", result.ImportedCount).
		Int("quotasCreated", result.QuotasCreated).
		Int("orphaned", result.OrphanedCount).
		Msg("import run finished")
	return result, nil
}

// importChunk fetches and extracts one chunk of message IDs in parallel,
// then persists the valid candidates in a single batched write. Messages
// that fail extraction are skipped silently; fetch errors fail the chunk,
// except authorization errors which abort the whole run.
func (imp *Importer) importChunk(ctx context.Context, userID, creditCardID string, messageIDs []string) ([]*domain.Transaction, error) {
	log := logger.WithCard(logger.FromContext(ctx), userID, creditCardID)

	candidates := make([]*domain.Candidate, len(messageIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range messageIDs {
		g.Go(func() error {
			msg, err := imp.source.Fetch(gctx, userID, id)
			if err != nil {
				return fmt.Errorf("fetching message %s: %w", id, err)
			}
			if imp.archive != nil {
				if err := imp.archive.Archive(gctx, userID, msg.ID, []byte(msg.Body)); err != nil {
					log.Warn().Err(err).Str("messageId", msg.ID).Msg("archive failed")
				}
			}
			if c := extract.Extract(msg.Body); c != nil {
				c.MessageID = msg.ID
				candidates[i] = c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrReauthorizationRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("importChunk: %w", err)
	}

	now := imp.now()
	transactions := make([]*domain.Transaction, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			transactions = append(transactions, c.Transaction(creditCardID, now))
		}
	}
	if len(transactions) == 0 {
		return nil, nil
	}

	if imp.categorizer != nil {
		// Suggestions are best effort; an uncategorized transaction falls
		// into the Other bucket until the user assigns one.
		byMerchant := make(map[string]string)
		for _, tx := range transactions {
			category, ok := byMerchant[tx.Merchant]
			if !ok {
				var err error
				category, err = imp.categorizer.Suggest(ctx, tx.Merchant)
				if err != nil {
					log.Warn().Err(err).Str("merchant", tx.Merchant).Msg("category suggestion failed")
					category = ""
				}
				byMerchant[tx.Merchant] = category
			}
			tx.CategoryID = category
		}
	}

	if err := imp.transactions.SaveBatch(ctx, userID, creditCardID, transactions); err != nil {
		return nil, fmt.Errorf("importChunk: persisting %d transactions: %w", len(transactions), err)
	}
	return transactions, nil
}
