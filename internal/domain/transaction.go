package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionSource tells how a transaction entered the system.
type TransactionSource string

const (
	// SourceEmail marks transactions imported from bank notification emails.
	// Their ID is the Gmail message ID, which doubles as the dedup key.
	SourceEmail TransactionSource = "email"
	// SourceManual marks transactions declared by the user.
	SourceManual TransactionSource = "manual"
)

// Transaction is one credit-card purchase. Email-sourced transactions are
// immutable once created except for category assignment and soft deletion.
type Transaction struct {
	ID              string            `json:"id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        Currency          `json:"currency"`
	CardType        string            `json:"cardType"`
	CardLastDigits  string            `json:"cardLastDigits"`
	Merchant        string            `json:"merchant"`
	TransactionDate time.Time         `json:"transactionDate"`
	Bank            string            `json:"bank"`
	Email           string            `json:"email"`
	Source          TransactionSource `json:"source"`
	CreditCardID    string            `json:"creditCardId"`
	CategoryID      string            `json:"categoryId"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Candidate is a provisionally extracted transaction, not yet confirmed
// unique or persisted. MessageID carries the external dedup key.
type Candidate struct {
	MessageID       string
	Amount          decimal.Decimal
	Currency        Currency
	CardLastDigits  string
	Merchant        string
	TransactionDate time.Time
}

// Transaction converts a candidate into a persistable transaction for the
// given card. The message ID becomes the document ID so a second import of
// the same email overwrites identical content instead of duplicating it.
func (c *Candidate) Transaction(creditCardID string, now time.Time) *Transaction {
	return &Transaction{
		ID:              c.MessageID,
		Amount:          c.Amount,
		Currency:        c.Currency,
		CardType:        "Tarjeta de Crédito",
		CardLastDigits:  c.CardLastDigits,
		Merchant:        c.Merchant,
		TransactionDate: c.TransactionDate,
		Bank:            "Banco de Chile",
		Email:           "enviodigital@bancochile.cl",
		Source:          SourceEmail,
		CreditCardID:    creditCardID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
