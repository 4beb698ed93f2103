// Package stats computes statement-style reports: quota totals per billing
// period and currency, category breakdowns, and a cross-card debt summary.
// Everything here is derived on demand from persisted records; nothing is
// cached, so there is no staleness to invalidate.
package stats

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/period"
)

// defaultCategory labels transactions with no merchant in breakdowns.
const defaultCategory = "Other"

// PeriodKey labels a billing period by its Chilean civil date range.
func PeriodKey(p *domain.BillingPeriod) string {
	loc := dates.Santiago()
	return fmt.Sprintf("%s - %s",
		p.StartDate.In(loc).Format("2006-01-02"),
		p.EndDate.In(loc).Format("2006-01-02"))
}

// MonthlySums totals quota amounts per (billing period, currency). A quota
// belongs to the period containing its due date per the matcher's rules.
// Periods with no matching quotas are omitted, not reported as zero rows;
// quotas outside every period are likewise dropped (the orphan report covers
// those).
func MonthlySums(periods []*domain.BillingPeriod, quotas []*domain.Quota) []domain.PeriodSum {
	type key struct {
		periodID string
		currency domain.Currency
	}
	totals := make(map[key]decimal.Decimal)

	for _, q := range quotas {
		p := period.Match(q.DueDate, periods)
		if p == nil {
			continue
		}
		k := key{periodID: p.ID, currency: q.Currency}
		totals[k] = totals[k].Add(q.Amount)
	}

	// Emit in period input order, CLP before Dolar, so responses are stable.
	var sums []domain.PeriodSum
	for _, p := range periods {
		for _, c := range []domain.Currency{domain.CLP, domain.Dolar} {
			if total, ok := totals[key{periodID: p.ID, currency: c}]; ok {
				sums = append(sums, domain.PeriodSum{
					PeriodKey:   PeriodKey(p),
					Currency:    c,
					TotalAmount: total,
				})
			}
		}
	}
	return sums
}

// CategoryBreakdown sums transaction amounts within one billing period by
// merchant-derived category label and currency.
func CategoryBreakdown(p *domain.BillingPeriod, transactions []*domain.Transaction) map[string]domain.CategoryAmounts {
	breakdown := make(map[string]domain.CategoryAmounts)
	for _, tx := range transactions {
		if period.Match(tx.TransactionDate, []*domain.BillingPeriod{p}) == nil {
			continue
		}

		label := tx.Merchant
		if label == "" {
			label = defaultCategory
		}

		amounts := breakdown[label]
		switch tx.Currency {
		case domain.Dolar:
			amounts.Dolar = amounts.Dolar.Add(tx.Amount)
		default:
			amounts.CLP = amounts.CLP.Add(tx.Amount)
		}
		breakdown[label] = amounts
	}
	return breakdown
}

// MonthlyStats builds the per-period report over transactions: totals per
// currency plus the category breakdown. Periods without activity are
// filtered out.
func MonthlyStats(periods []*domain.BillingPeriod, transactions []*domain.Transaction) []domain.PeriodStats {
	var result []domain.PeriodStats
	for _, p := range periods {
		breakdown := CategoryBreakdown(p, transactions)
		if len(breakdown) == 0 {
			continue
		}

		entry := domain.PeriodStats{
			Month:             p.Month,
			CategoryBreakdown: breakdown,
		}
		for _, amounts := range breakdown {
			entry.TotalCLP = entry.TotalCLP.Add(amounts.CLP)
			entry.TotalDolar = entry.TotalDolar.Add(amounts.Dolar)
		}
		result = append(result, entry)
	}
	return result
}

// GlobalDebtSummary aggregates pending quotas across all of a user's cards:
// outstanding totals per currency, how many billing months remain, and what
// falls due in the period containing now.
func GlobalDebtSummary(now time.Time, periods []*domain.BillingPeriod, quotas []*domain.Quota) domain.DebtSummary {
	summary := domain.DebtSummary{}
	current := period.Match(now, periods)
	months := make(map[string]struct{})

	for _, q := range quotas {
		if q.Status != domain.QuotaPending {
			continue
		}
		summary.PendingCount++

		p := period.Match(q.DueDate, periods)
		if p != nil {
			months[p.Month] = struct{}{}
		}

		if q.Currency == domain.Dolar {
			summary.TotalUSD = summary.TotalUSD.Add(q.Amount)
		} else {
			summary.TotalCLP = summary.TotalCLP.Add(q.Amount)
		}

		if current != nil && p != nil && p.ID == current.ID {
			if q.Currency == domain.Dolar {
				summary.NextMonthUSD = summary.NextMonthUSD.Add(q.Amount)
			} else {
				summary.NextMonthCLP = summary.NextMonthCLP.Add(q.Amount)
			}
		}
	}

	summary.MonthsRemaining = len(months)
	return summary
}
