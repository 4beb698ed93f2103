package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotaStatus is the payment state of a single installment.
type QuotaStatus string

const (
	QuotaPending QuotaStatus = "pending"
	QuotaPaid    QuotaStatus = "paid"
)

// Quota is one scheduled installment of a transaction. A transaction owns
// its quota set; the set is always replaced as a whole when the installment
// count changes, never partially edited. The only in-place mutation is the
// pending→paid transition, which stamps PaymentDate.
type Quota struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"dueDate"`
	Status        QuotaStatus     `json:"status"`
	PaymentDate   *time.Time      `json:"paymentDate,omitempty"`
	Currency      Currency        `json:"currency"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}
