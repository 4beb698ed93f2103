// Package export streams period aggregates into BigQuery for ad-hoc
// analysis. The warehouse is write-only from this service's point of view;
// nothing here reads back.
package export

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/cuotas-app/server/internal/domain"
)

const (
	datasetID       = "spending"
	periodSumsTable = "period_sums"
)

// PeriodSumRow is the warehouse shape of one (period, currency) total.
// Amounts are exported as strings to keep decimal exactness; BigQuery parses
// them into NUMERIC on its side.
type PeriodSumRow struct {
	UserID       string    `bigquery:"user_id"`
	CreditCardID string    `bigquery:"credit_card_id"`
	PeriodKey    string    `bigquery:"period_key"`
	Currency     string    `bigquery:"currency"`
	TotalAmount  string    `bigquery:"total_amount"`
	ExportedTS   time.Time `bigquery:"exported_ts"`
}

// Exporter writes aggregate rows for one project.
type Exporter struct {
	client *bigquery.Client
}

func NewExporter(client *bigquery.Client) *Exporter {
	return &Exporter{client: client}
}

// ExportPeriodSums streams one card's period totals into the warehouse.
func (e *Exporter) ExportPeriodSums(ctx context.Context, userID, creditCardID string, sums []domain.PeriodSum) error {
	if len(sums) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*PeriodSumRow, len(sums))
	for i, sum := range sums {
		rows[i] = &PeriodSumRow{
			UserID:       userID,
			CreditCardID: creditCardID,
			PeriodKey:    sum.PeriodKey,
			Currency:     string(sum.Currency),
			TotalAmount:  sum.TotalAmount.String(),
			ExportedTS:   now,
		}
	}

	inserter := e.client.Dataset(datasetID).Table(periodSumsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("ExportPeriodSums: inserting %d rows: %w", len(rows), err)
	}
	return nil
}
