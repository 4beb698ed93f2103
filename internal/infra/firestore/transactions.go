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

// TransactionRepository reads and writes transaction documents.
type TransactionRepository struct {
	client *firestore.Client
}

func NewTransactionRepository(client *firestore.Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// SaveBatch writes transactions through a bulk writer, each keyed by its own
// ID. Re-importing a message overwrites the same document, so the batch is
// safe to repeat.
func (r *TransactionRepository) SaveBatch(ctx context.Context, userID, creditCardID string, transactions []*domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	col := transactionsCol(r.client, userID, creditCardID)
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(transactions))
	for _, tx := range transactions {
		job, err := bw.Set(col.Doc(tx.ID), transactionToDoc(tx))
		if err != nil {
			bw.End()
			return fmt.Errorf("SaveBatch: queueing %s: %w", tx.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("SaveBatch: writing %s: %w", transactions[i].ID, err)
		}
	}
	return nil
}

// ExistingIDs reports which of the given IDs have a live transaction
// document. The caller keeps chunks within Firestore's 30-value `in` limit.
func (r *TransactionRepository) ExistingIDs(ctx context.Context, userID, creditCardID string, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	iter := transactionsCol(r.client, userID, creditCardID).
		Where("id", "in", values).
		Documents(ctx)
	defer iter.Stop()

	existing := make(map[string]struct{})
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return existing, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingIDs: iterating: %w", err)
		}
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("ExistingIDs: decoding %s: %w", doc.Ref.ID, err)
		}
		if d.DeletedAt == nil {
			existing[d.ID] = struct{}{}
		}
	}
}

// ListActive returns every non-deleted transaction for the card.
func (r *TransactionRepository) ListActive(ctx context.Context, userID, creditCardID string) ([]*domain.Transaction, error) {
	iter := transactionsCol(r.client, userID, creditCardID).Documents(ctx)
	defer iter.Stop()

	var transactions []*domain.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return transactions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ListActive: iterating: %w", err)
		}
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("ListActive: decoding %s: %w", doc.Ref.ID, err)
		}
		if d.DeletedAt != nil {
			continue
		}
		tx, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListActive: %w", err)
		}
		transactions = append(transactions, tx)
	}
}

// FindByID returns one live transaction, or quotas.ErrNotFound when the
// document does not exist or is soft-deleted.
func (r *TransactionRepository) FindByID(ctx context.Context, userID, creditCardID, transactionID string) (*domain.Transaction, error) {
	doc, err := transactionsCol(r.client, userID, creditCardID).Doc(transactionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("FindByID: %s: %w", transactionID, quotas.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindByID: getting %s: %w", transactionID, err)
	}

	var d transactionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("FindByID: decoding %s: %w", transactionID, err)
	}
	if d.DeletedAt != nil {
		return nil, fmt.Errorf("FindByID: %s: %w", transactionID, quotas.ErrNotFound)
	}
	tx, err := d.toDomain()
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return tx, nil
}

// Create persists one transaction document.
func (r *TransactionRepository) Create(ctx context.Context, userID, creditCardID string, tx *domain.Transaction) error {
	if _, err := transactionsCol(r.client, userID, creditCardID).Doc(tx.ID).Set(ctx, transactionToDoc(tx)); err != nil {
		return fmt.Errorf("Create: writing %s: %w", tx.ID, err)
	}
	return nil
}

// Update overwrites one transaction document.
func (r *TransactionRepository) Update(ctx context.Context, userID, creditCardID string, tx *domain.Transaction) error {
	if _, err := transactionsCol(r.client, userID, creditCardID).Doc(tx.ID).Set(ctx, transactionToDoc(tx)); err != nil {
		return fmt.Errorf("Update: writing %s: %w", tx.ID, err)
	}
	return nil
}

// SoftDelete stamps deletedAt, hiding the transaction from reads without
// losing the dedup record for its source email.
func (r *TransactionRepository) SoftDelete(ctx context.Context, userID, creditCardID, transactionID string, now time.Time) error {
	_, err := transactionsCol(r.client, userID, creditCardID).Doc(transactionID).Update(ctx, []firestore.Update{
		{Path: "deletedAt", Value: now},
		{Path: "updatedAt", Value: now},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("SoftDelete: %s: %w", transactionID, quotas.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("SoftDelete: updating %s: %w", transactionID, err)
	}
	return nil
}

// HardDelete removes the document entirely. Only manual transactions go
// through here; deleting an email-sourced document would let the next import
// resurrect it.
func (r *TransactionRepository) HardDelete(ctx context.Context, userID, creditCardID, transactionID string) error {
	if _, err := transactionsCol(r.client, userID, creditCardID).Doc(transactionID).Delete(ctx); err != nil {
		return fmt.Errorf("HardDelete: deleting %s: %w", transactionID, err)
	}
	return nil
}

// ForCard returns a view bound to one card, satisfying the quota engine's
// card-scoped store interfaces.
func (r *TransactionRepository) ForCard(userID, creditCardID string) *CardTransactions {
	return &CardTransactions{repo: r, userID: userID, creditCardID: creditCardID}
}

// CardTransactions is a TransactionRepository scoped to a single card.
type CardTransactions struct {
	repo         *TransactionRepository
	userID       string
	creditCardID string
}

func (c *CardTransactions) FindByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return c.repo.FindByID(ctx, c.userID, c.creditCardID, transactionID)
}

func (c *CardTransactions) Create(ctx context.Context, tx *domain.Transaction) error {
	return c.repo.Create(ctx, c.userID, c.creditCardID, tx)
}

func (c *CardTransactions) Update(ctx context.Context, tx *domain.Transaction) error {
	return c.repo.Update(ctx, c.userID, c.creditCardID, tx)
}

func (c *CardTransactions) HardDelete(ctx context.Context, transactionID string) error {
	return c.repo.HardDelete(ctx, c.userID, c.creditCardID, transactionID)
}
