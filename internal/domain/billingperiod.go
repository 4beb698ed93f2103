package domain

import "time"

// BillingPeriod is a statement date range for one credit card. Periods for
// the same card must not overlap; the write path rejects overlapping
// creations. Reads return periods in descending StartDate order so index 0
// is always the most recent.
type BillingPeriod struct {
	ID           string    `firestore:"id" json:"id"`
	CreditCardID string    `firestore:"creditCardId" json:"creditCardId"`
	Month        string    `firestore:"month" json:"month"`
	StartDate    time.Time `firestore:"startDate" json:"startDate"`
	EndDate      time.Time `firestore:"endDate" json:"endDate"`
	DueDate      time.Time `firestore:"dueDate" json:"dueDate"`

	CreatedAt time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt" json:"updatedAt"`
	DeletedAt *time.Time `firestore:"deletedAt" json:"deletedAt,omitempty"`
}

// EmailToken is the persisted Gmail OAuth credential for one user.
// ExpiryDate is in epoch milliseconds, matching what the OAuth consent flow
// stores.
type EmailToken struct {
	AccessToken  string `firestore:"accessToken" json:"accessToken"`
	RefreshToken string `firestore:"refreshToken" json:"refreshToken"`
	ExpiryDate   int64  `firestore:"expiryDate" json:"expiryDate"`
}

// Expired reports whether the access token is past its expiry at t.
func (tok *EmailToken) Expired(t time.Time) bool {
	return t.UnixMilli() > tok.ExpiryDate
}
