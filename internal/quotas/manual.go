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

// ErrNotManual guards mutations that only apply to user-declared
// transactions; imported ones are immutable except for metadata.
var ErrNotManual = errors.New("only manual transactions can be modified")

// ManualParams describes an installment purchase the user declares by hand,
// typically one that was already partially paid before entering the system.
// The schedule therefore anchors on LastPaidMonth, not the purchase date:
// the two diverge as soon as one installment has been paid.
type ManualParams struct {
	Merchant          string          `json:"merchant"`
	PurchaseDate      time.Time       `json:"purchaseDate"`
	QuotaAmount       decimal.Decimal `json:"quotaAmount"`
	TotalInstallments int             `json:"totalInstallments"`
	PaidInstallments  int             `json:"paidInstallments"`
	LastPaidMonth     string          `json:"lastPaidMonth"`
	Currency          domain.Currency `json:"currency"`
}

// Validate rejects the declaration before anything is written.
func (p *ManualParams) Validate() error {
	switch {
	case p.Merchant == "":
		return errors.New("merchant is required")
	case p.PurchaseDate.IsZero():
		return errors.New("purchaseDate is required")
	case !p.QuotaAmount.IsPositive():
		return errors.New("quotaAmount must be positive")
	case p.TotalInstallments < MinInstallments || p.TotalInstallments > MaxInstallments:
		return fmt.Errorf("totalInstallments %d: %w", p.TotalInstallments, ErrInvalidInstallments)
	case p.PaidInstallments < 0 || p.PaidInstallments > p.TotalInstallments:
		return errors.New("paidInstallments must be between 0 and totalInstallments")
	case p.Currency != domain.CLP && p.Currency != domain.Dolar:
		return fmt.Errorf("unknown currency %q", p.Currency)
	}
	if _, err := dates.ParseMonth(p.LastPaidMonth); err != nil {
		return fmt.Errorf("lastPaidMonth: %w", err)
	}
	return nil
}

// TotalAmount is the declared per-quota amount times the installment count.
func (p *ManualParams) TotalAmount() decimal.Decimal {
	return p.QuotaAmount.Mul(decimal.NewFromInt(int64(p.TotalInstallments)))
}

// BuildManualInstallments materializes the declared schedule. Installment i
// (1-indexed) falls due at LastPaidMonth + (i − PaidInstallments) months, on
// the purchase date's day of month clamped to the target month. Installments
// up to PaidInstallments are already paid, with the payment date taken to be
// the due date; the rest are pending.
func BuildManualInstallments(transactionID string, p ManualParams, now time.Time) ([]*domain.Quota, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("BuildManualInstallments: %w", err)
	}

	lastPaid, err := dates.ParseMonth(p.LastPaidMonth)
	if err != nil {
		return nil, fmt.Errorf("BuildManualInstallments: %w", err)
	}
	day := dates.CivilDate(p.PurchaseDate).Day
	anchor := lastPaid
	if last := dates.DaysIn(anchor.Year, anchor.Month); day <= last {
		anchor.Day = day
	} else {
		anchor.Day = last
	}

	quotas := make([]*domain.Quota, p.TotalInstallments)
	for i := 1; i <= p.TotalInstallments; i++ {
		due := dates.Midnight(dates.AddMonths(anchor, i-p.PaidInstallments))
		q := &domain.Quota{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			Amount:        p.QuotaAmount,
			DueDate:       due,
			Status:        domain.QuotaPending,
			Currency:      p.Currency,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if i <= p.PaidInstallments {
			q.Status = domain.QuotaPaid
			paymentDate := due
			q.PaymentDate = &paymentDate
		}
		quotas[i-1] = q
	}
	return quotas, nil
}

// TransactionStore extends lookup with the writes manual transactions need.
// Manual deletion is the one hard delete in the system and cascades to the
// quota set.
type TransactionStore interface {
	TransactionReader
	Create(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
	HardDelete(ctx context.Context, transactionID string) error
}

// Manager orchestrates user-declared installment purchases.
type Manager struct {
	transactions TransactionStore
	quotas       QuotaStore
}

func NewManager(transactions TransactionStore, quotas QuotaStore) *Manager {
	return &Manager{transactions: transactions, quotas: quotas}
}

// ManualResult reports a created or updated manual transaction.
type ManualResult struct {
	Transaction   *domain.Transaction `json:"transaction"`
	QuotasCreated int                 `json:"quotasCreated"`
}

// CreateManual validates the declaration, persists the transaction, then its
// schedule. Validation happens before any write so a rejection leaves no
// partial state.
func (m *Manager) CreateManual(ctx context.Context, creditCardID string, p ManualParams) (*ManualResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("CreateManual: %w", err)
	}

	now := time.Now()
	tx := &domain.Transaction{
		ID:              uuid.NewString(),
		Amount:          p.TotalAmount(),
		Currency:        p.Currency,
		CardType:        "Tarjeta de Crédito",
		Merchant:        p.Merchant,
		TransactionDate: p.PurchaseDate,
		Source:          domain.SourceManual,
		CreditCardID:    creditCardID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	quotas, err := BuildManualInstallments(tx.ID, p, now)
	if err != nil {
		return nil, fmt.Errorf("CreateManual: %w", err)
	}

	if err := m.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("CreateManual: persisting transaction: %w", err)
	}
	if err := m.quotas.CreateBatch(ctx, tx.ID, quotas); err != nil {
		return nil, fmt.Errorf("CreateManual: persisting quotas: %w", err)
	}

	return &ManualResult{Transaction: tx, QuotasCreated: len(quotas)}, nil
}

// UpdateManual re-declares a manual transaction: the stored record is
// rewritten and its schedule fully replaced.
func (m *Manager) UpdateManual(ctx context.Context, transactionID string, p ManualParams) (*ManualResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("UpdateManual: %w", err)
	}

	tx, err := m.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("UpdateManual: %w", err)
	}
	if tx.Source != domain.SourceManual {
		return nil, fmt.Errorf("UpdateManual: transaction %s: %w", transactionID, ErrNotManual)
	}

	now := time.Now()
	tx.Merchant = p.Merchant
	tx.Amount = p.TotalAmount()
	tx.Currency = p.Currency
	if !p.PurchaseDate.IsZero() {
		tx.TransactionDate = p.PurchaseDate
	}
	tx.UpdatedAt = now

	quotas, err := BuildManualInstallments(tx.ID, p, now)
	if err != nil {
		return nil, fmt.Errorf("UpdateManual: %w", err)
	}

	if err := m.transactions.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("UpdateManual: persisting transaction: %w", err)
	}
	if _, err := m.quotas.DeleteForTransaction(ctx, tx.ID); err != nil {
		return nil, fmt.Errorf("UpdateManual: deleting previous quotas: %w", err)
	}
	if err := m.quotas.CreateBatch(ctx, tx.ID, quotas); err != nil {
		return nil, fmt.Errorf("UpdateManual: persisting quotas: %w", err)
	}

	return &ManualResult{Transaction: tx, QuotasCreated: len(quotas)}, nil
}

// DeleteManual removes a manual transaction and cascades to its quotas.
func (m *Manager) DeleteManual(ctx context.Context, transactionID string) (int, error) {
	tx, err := m.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return 0, fmt.Errorf("DeleteManual: %w", err)
	}
	if tx.Source != domain.SourceManual {
		return 0, fmt.Errorf("DeleteManual: transaction %s: %w", transactionID, ErrNotManual)
	}

	deleted, err := m.quotas.DeleteForTransaction(ctx, transactionID)
	if err != nil {
		return 0, fmt.Errorf("DeleteManual: deleting quotas: %w", err)
	}
	if err := m.transactions.HardDelete(ctx, transactionID); err != nil {
		return deleted, fmt.Errorf("DeleteManual: deleting transaction: %w", err)
	}
	return deleted, nil
}
