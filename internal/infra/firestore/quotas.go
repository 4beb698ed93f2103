package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/quotas"
)

// QuotaRepository reads and writes quota documents under their transaction.
type QuotaRepository struct {
	client *firestore.Client
}

func NewQuotaRepository(client *firestore.Client) *QuotaRepository {
	return &QuotaRepository{client: client}
}

// ListByTransaction returns the quota set ordered by due date.
func (r *QuotaRepository) ListByTransaction(ctx context.Context, userID, creditCardID, transactionID string) ([]*domain.Quota, error) {
	iter := quotasCol(r.client, userID, creditCardID, transactionID).
		OrderBy("due_date", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var result []*domain.Quota
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ListByTransaction: iterating: %w", err)
		}
		var d quotaDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("ListByTransaction: decoding %s: %w", doc.Ref.ID, err)
		}
		q, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListByTransaction: %w", err)
		}
		result = append(result, q)
	}
}

// DeleteForTransaction removes every quota of the transaction and reports
// how many were deleted.
func (r *QuotaRepository) DeleteForTransaction(ctx context.Context, userID, creditCardID, transactionID string) (int, error) {
	iter := quotasCol(r.client, userID, creditCardID, transactionID).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("DeleteForTransaction: iterating: %w", err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("DeleteForTransaction: queueing %s: %w", doc.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, fmt.Errorf("DeleteForTransaction: deleting: %w", err)
		}
	}
	return len(jobs), nil
}

// CreateBatch writes a quota set in one bulk operation.
func (r *QuotaRepository) CreateBatch(ctx context.Context, userID, creditCardID, transactionID string, set []*domain.Quota) error {
	if len(set) == 0 {
		return nil
	}

	col := quotasCol(r.client, userID, creditCardID, transactionID)
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(set))
	for _, q := range set {
		job, err := bw.Set(col.Doc(q.ID), quotaToDoc(q))
		if err != nil {
			bw.End()
			return fmt.Errorf("CreateBatch: queueing %s: %w", q.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("CreateBatch: writing %s: %w", set[i].ID, err)
		}
	}
	return nil
}

// ListForCard returns every quota under every live transaction of the card.
// Reporting endpoints aggregate over this.
func (r *QuotaRepository) ListForCard(ctx context.Context, userID, creditCardID string, transactions []*domain.Transaction) ([]*domain.Quota, error) {
	var all []*domain.Quota
	for _, tx := range transactions {
		set, err := r.ListByTransaction(ctx, userID, creditCardID, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("ListForCard: transaction %s: %w", tx.ID, err)
		}
		all = append(all, set...)
	}
	return all, nil
}

// MarkPaid transitions one quota to paid, stamping the payment date.
func (r *QuotaRepository) MarkPaid(ctx context.Context, userID, creditCardID, transactionID, quotaID string, now time.Time) error {
	_, err := quotasCol(r.client, userID, creditCardID, transactionID).Doc(quotaID).Update(ctx, []firestore.Update{
		{Path: "status", Value: domain.QuotaPaid},
		{Path: "paymentDate", Value: now},
		{Path: "updatedAt", Value: now},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("MarkPaid: quota %s: %w", quotaID, quotas.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("MarkPaid: updating %s: %w", quotaID, err)
	}
	return nil
}

// ForCard returns a view bound to one card, satisfying the quota engine's
// store interface.
func (r *QuotaRepository) ForCard(userID, creditCardID string) *CardQuotas {
	return &CardQuotas{repo: r, userID: userID, creditCardID: creditCardID}
}

// CardQuotas is a QuotaRepository scoped to a single card.
type CardQuotas struct {
	repo         *QuotaRepository
	userID       string
	creditCardID string
}

func (c *CardQuotas) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Quota, error) {
	return c.repo.ListByTransaction(ctx, c.userID, c.creditCardID, transactionID)
}

func (c *CardQuotas) DeleteForTransaction(ctx context.Context, transactionID string) (int, error) {
	return c.repo.DeleteForTransaction(ctx, c.userID, c.creditCardID, transactionID)
}

func (c *CardQuotas) CreateBatch(ctx context.Context, transactionID string, set []*domain.Quota) error {
	return c.repo.CreateBatch(ctx, c.userID, c.creditCardID, transactionID, set)
}

// QuotaInitializer adapts the repositories to the import run's backfill
// hook: transactions that arrive without a schedule get a single lump-sum
// quota.
type QuotaInitializer struct {
	transactions *TransactionRepository
	quotas       *QuotaRepository
}

func NewQuotaInitializer(transactions *TransactionRepository, quotaRepo *QuotaRepository) *QuotaInitializer {
	return &QuotaInitializer{transactions: transactions, quotas: quotaRepo}
}

func (q *QuotaInitializer) InitializeMissing(ctx context.Context, userID, creditCardID string, transactions []*domain.Transaction) (int, error) {
	gen := quotas.NewGenerator(q.transactions.ForCard(userID, creditCardID), q.quotas.ForCard(userID, creditCardID))
	return gen.InitializeMissing(ctx, transactions)
}
