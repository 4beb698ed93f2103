// Package period matches instants against billing periods and reasons about
// gaps in the period sequence. Period boundaries are civil dates in Chilean
// time: a period covers its start date from local midnight through the last
// instant of its end date, so a due date stamped at Chilean midnight always
// lands inside the period it was written for, whatever the server's zone.
package period

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

// ErrOverlap rejects a new billing period whose date range intersects one
// already stored for the card.
var ErrOverlap = errors.New("billing period overlaps an existing period")

// Match returns the first period in input order containing the instant, or
// nil when none does. Stored periods are non-overlapping by construction
// (creation rejects overlaps), so first-match order only matters for data
// predating that check.
func Match(t time.Time, periods []*domain.BillingPeriod) *domain.BillingPeriod {
	for _, p := range periods {
		start := dates.StartOfDay(p.StartDate)
		end := dates.EndOfDay(p.EndDate)
		if !t.Before(start) && !t.After(end) {
			return p
		}
	}
	return nil
}

// Suggestion is a proposed next billing period for orphaned transactions.
type Suggestion struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Month     string    `json:"month"`
}

// OrphanReport lists transactions outside every known period together with
// the suggested period that would cover the gap.
type OrphanReport struct {
	Orphaned        []*domain.Transaction
	SuggestedPeriod *Suggestion
}

// FindOrphans scans transactions for dates that no period contains and
// proposes the next period. Periods are expected in descending start-date
// order, as the repository returns them. The suggestion is a heuristic: it
// extends the most recent period by roughly one month, or brackets the first
// orphan's calendar month when no periods exist. It is nil only when there
// is nothing to base a suggestion on.
func FindOrphans(transactions []*domain.Transaction, periods []*domain.BillingPeriod) OrphanReport {
	var report OrphanReport
	for _, tx := range transactions {
		if Match(tx.TransactionDate, periods) == nil {
			report.Orphaned = append(report.Orphaned, tx)
		}
	}

	if len(periods) > 0 {
		latest := periods[0]
		for _, p := range periods[1:] {
			if p.StartDate.After(latest.StartDate) {
				latest = p
			}
		}
		start := dates.CivilDate(latest.EndDate).AddDays(1)
		end := dates.AddMonths(start, 1).AddDays(-1)
		report.SuggestedPeriod = newSuggestion(start, end)
		return report
	}

	if len(report.Orphaned) > 0 {
		d := dates.CivilDate(report.Orphaned[0].TransactionDate)
		report.SuggestedPeriod = newSuggestion(dates.FirstOfMonth(d), dates.LastOfMonth(d))
	}
	return report
}

func newSuggestion(start, end civil.Date) *Suggestion {
	return &Suggestion{
		StartDate: dates.Midnight(start),
		EndDate:   dates.Midnight(end),
		Month:     dates.MonthKey(dates.Midnight(start)),
	}
}

// Overlaps reports whether two periods share any civil day.
func Overlaps(a, b *domain.BillingPeriod) bool {
	aStart, aEnd := dates.StartOfDay(a.StartDate), dates.EndOfDay(a.EndDate)
	bStart, bEnd := dates.StartOfDay(b.StartDate), dates.EndOfDay(b.EndDate)
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
