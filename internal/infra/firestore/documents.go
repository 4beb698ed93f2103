package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/domain"
)

// Storage shapes of the monetary entities. decimal.Decimal has no exported
// fields, so the Firestore encoder would write it as an empty map; amounts
// are stored as decimal strings and converted at this boundary.

type transactionDoc struct {
	ID              string     `firestore:"id"`
	Amount          string     `firestore:"amount"`
	Currency        string     `firestore:"currency"`
	CardType        string     `firestore:"cardType"`
	CardLastDigits  string     `firestore:"cardLastDigits"`
	Merchant        string     `firestore:"merchant"`
	TransactionDate time.Time  `firestore:"transactionDate"`
	Bank            string     `firestore:"bank"`
	Email           string     `firestore:"email"`
	Source          string     `firestore:"source"`
	CreditCardID    string     `firestore:"creditCardId"`
	CategoryID      string     `firestore:"categoryId"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	DeletedAt       *time.Time `firestore:"deletedAt"`
}

func transactionToDoc(tx *domain.Transaction) *transactionDoc {
	return &transactionDoc{
		ID:              tx.ID,
		Amount:          tx.Amount.String(),
		Currency:        string(tx.Currency),
		CardType:        tx.CardType,
		CardLastDigits:  tx.CardLastDigits,
		Merchant:        tx.Merchant,
		TransactionDate: tx.TransactionDate,
		Bank:            tx.Bank,
		Email:           tx.Email,
		Source:          string(tx.Source),
		CreditCardID:    tx.CreditCardID,
		CategoryID:      tx.CategoryID,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
		DeletedAt:       tx.DeletedAt,
	}
}

func (d *transactionDoc) toDomain() (*domain.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("toDomain: transaction %s amount %q: %w", d.ID, d.Amount, err)
	}
	return &domain.Transaction{
		ID:              d.ID,
		Amount:          amount,
		Currency:        domain.Currency(d.Currency),
		CardType:        d.CardType,
		CardLastDigits:  d.CardLastDigits,
		Merchant:        d.Merchant,
		TransactionDate: d.TransactionDate,
		Bank:            d.Bank,
		Email:           d.Email,
		Source:          domain.TransactionSource(d.Source),
		CreditCardID:    d.CreditCardID,
		CategoryID:      d.CategoryID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		DeletedAt:       d.DeletedAt,
	}, nil
}

type quotaDoc struct {
	ID            string     `firestore:"id"`
	TransactionID string     `firestore:"transactionId"`
	Amount        string     `firestore:"amount"`
	DueDate       time.Time  `firestore:"due_date"`
	Status        string     `firestore:"status"`
	PaymentDate   *time.Time `firestore:"paymentDate"`
	Currency      string     `firestore:"currency"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	DeletedAt     *time.Time `firestore:"deletedAt"`
}

func quotaToDoc(q *domain.Quota) *quotaDoc {
	return &quotaDoc{
		ID:            q.ID,
		TransactionID: q.TransactionID,
		Amount:        q.Amount.String(),
		DueDate:       q.DueDate,
		Status:        string(q.Status),
		PaymentDate:   q.PaymentDate,
		Currency:      string(q.Currency),
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
		DeletedAt:     q.DeletedAt,
	}
}

func (d *quotaDoc) toDomain() (*domain.Quota, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("toDomain: quota %s amount %q: %w", d.ID, d.Amount, err)
	}
	return &domain.Quota{
		ID:            d.ID,
		TransactionID: d.TransactionID,
		Amount:        amount,
		DueDate:       d.DueDate,
		Status:        domain.QuotaStatus(d.Status),
		PaymentDate:   d.PaymentDate,
		Currency:      domain.Currency(d.Currency),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DeletedAt:     d.DeletedAt,
	}, nil
}
