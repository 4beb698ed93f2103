package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/period"
)

// BillingPeriodRepository reads and writes billing period documents.
type BillingPeriodRepository struct {
	client *firestore.Client
}

func NewBillingPeriodRepository(client *firestore.Client) *BillingPeriodRepository {
	return &BillingPeriodRepository{client: client}
}

// Create stores a new billing period after checking it against every
// existing period of the card; an intersecting range fails with
// period.ErrOverlap and writes nothing.
func (r *BillingPeriodRepository) Create(ctx context.Context, userID, creditCardID string, p *domain.BillingPeriod) error {
	existing, err := r.ListDescending(ctx, userID, creditCardID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	for _, other := range existing {
		if period.Overlaps(p, other) {
			return fmt.Errorf("Create: %s to %s: %w",
				p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"), period.ErrOverlap)
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreditCardID = creditCardID
	if _, err := periodsCol(r.client, userID, creditCardID).Doc(p.ID).Set(ctx, p); err != nil {
		return fmt.Errorf("Create: writing %s: %w", p.ID, err)
	}
	return nil
}

// ListDescending returns the card's periods ordered by start date, most
// recent first, soft-deleted ones excluded.
func (r *BillingPeriodRepository) ListDescending(ctx context.Context, userID, creditCardID string) ([]*domain.BillingPeriod, error) {
	iter := periodsCol(r.client, userID, creditCardID).
		OrderBy("startDate", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var periods []*domain.BillingPeriod
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return periods, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ListDescending: iterating: %w", err)
		}
		var p domain.BillingPeriod
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("ListDescending: decoding %s: %w", doc.Ref.ID, err)
		}
		if p.DeletedAt == nil {
			periods = append(periods, &p)
		}
	}
}
