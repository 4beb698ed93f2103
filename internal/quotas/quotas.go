// Package quotas builds and replaces installment schedules. Splitting is
// integer arithmetic in the currency's minor unit: every quota gets the
// floored share and the last one absorbs the remainder, so the schedule
// always sums back to the transaction amount exactly.
package quotas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

const (
	MinInstallments = 1
	MaxInstallments = 48
)

// ErrInvalidInstallments rejects installment counts outside [1,48].
var ErrInvalidInstallments = errors.New("installment count must be between 1 and 48")

// ErrNotFound signals that a referenced transaction does not exist (or is
// soft-deleted). Routine absence, not a failure.
var ErrNotFound = errors.New("transaction not found")

// TransactionReader looks up one transaction. Implemented by the Firestore
// transaction repository.
type TransactionReader interface {
	FindByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
}

// QuotaStore is the persistence surface the generator needs. Delete and
// create are separate calls on purpose: the two are not atomic, and a crash
// in between leaves a transaction with zero quotas, which callers treat as
// "needs regeneration".
type QuotaStore interface {
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Quota, error)
	DeleteForTransaction(ctx context.Context, transactionID string) (int, error)
	CreateBatch(ctx context.Context, transactionID string, quotas []*domain.Quota) error
}

// Generator computes installment schedules for transactions.
type Generator struct {
	transactions TransactionReader
	quotas       QuotaStore
}

func NewGenerator(transactions TransactionReader, quotas QuotaStore) *Generator {
	return &Generator{transactions: transactions, quotas: quotas}
}

// SplitResult reports a completed re-split.
type SplitResult struct {
	Deleted int             `json:"deleted"`
	Created int             `json:"created"`
	Quotas  []*domain.Quota `json:"quotas"`
}

// Split replaces a transaction's quota set with a fresh schedule of count
// installments. The previous set is always removed whole before the new one
// is written: the generator is also how an already-split transaction is
// re-split, and merging old and new schedules would corrupt both.
func (g *Generator) Split(ctx context.Context, transactionID string, count int) (*SplitResult, error) {
	if count < MinInstallments || count > MaxInstallments {
		return nil, fmt.Errorf("Split: got %d: %w", count, ErrInvalidInstallments)
	}

	tx, err := g.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("Split: looking up transaction %s: %w", transactionID, err)
	}

	deleted, err := g.quotas.DeleteForTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("Split: deleting previous quotas: %w", err)
	}

	quotas := Build(tx, count, time.Now())
	if err := g.quotas.CreateBatch(ctx, transactionID, quotas); err != nil {
		return nil, fmt.Errorf("Split: creating quotas: %w", err)
	}

	return &SplitResult{Deleted: deleted, Created: len(quotas), Quotas: quotas}, nil
}

// InitializeMissing creates a lump-sum pending quota for every transaction
// that has none. Idempotent: transactions with quotas are left alone, so the
// importer can run it after every batch.
func (g *Generator) InitializeMissing(ctx context.Context, transactions []*domain.Transaction) (int, error) {
	created := 0
	for _, tx := range transactions {
		existing, err := g.quotas.ListByTransaction(ctx, tx.ID)
		if err != nil {
			return created, fmt.Errorf("InitializeMissing: listing quotas for %s: %w", tx.ID, err)
		}
		if len(existing) > 0 {
			continue
		}
		if err := g.quotas.CreateBatch(ctx, tx.ID, Build(tx, 1, time.Now())); err != nil {
			return created, fmt.Errorf("InitializeMissing: creating quota for %s: %w", tx.ID, err)
		}
		created++
	}
	return created, nil
}

// Build computes the quota set for a transaction without touching storage.
// The caller has already validated count.
func Build(tx *domain.Transaction, count int, now time.Time) []*domain.Quota {
	amounts := SplitAmounts(tx.Amount, tx.Currency, count)
	dueDates := DueDates(tx.TransactionDate, count)

	quotas := make([]*domain.Quota, count)
	for i := range quotas {
		quotas[i] = &domain.Quota{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			Amount:        amounts[i],
			DueDate:       dueDates[i],
			Status:        domain.QuotaPending,
			Currency:      tx.Currency,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return quotas
}

// SplitAmounts divides total into count parts in the currency's minor unit.
// Parts 1..count-1 are floor(total/count); the last part absorbs the
// remainder so the parts sum to total with no drift.
func SplitAmounts(total decimal.Decimal, currency domain.Currency, count int) []decimal.Decimal {
	exp := currency.Exponent()
	each := total.Div(decimal.NewFromInt(int64(count))).RoundDown(exp)

	amounts := make([]decimal.Decimal, count)
	for i := 0; i < count-1; i++ {
		amounts[i] = each
	}
	amounts[count-1] = total.Sub(each.Mul(decimal.NewFromInt(int64(count - 1))))
	return amounts
}

// DueDates schedules count installments for a purchase made at txDate. A
// single installment falls due on the purchase date itself; a plan of two or
// more starts the month after the purchase, one per month, each stamped at
// Chilean local midnight. The day of month is clamped to shorter months.
func DueDates(txDate time.Time, count int) []time.Time {
	if count == 1 {
		return []time.Time{txDate}
	}

	base := dates.CivilDate(txDate)
	due := make([]time.Time, count)
	for i := range due {
		due[i] = dates.Midnight(dates.AddMonths(base, i+1))
	}
	return due
}
