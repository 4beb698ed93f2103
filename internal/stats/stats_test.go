package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

func scl(day int, month time.Month, year int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, dates.Santiago())
}

func makePeriod(id, month string, start, end time.Time) *domain.BillingPeriod {
	return &domain.BillingPeriod{
		ID:        id,
		Month:     month,
		StartDate: start,
		EndDate:   end,
		DueDate:   end.AddDate(0, 0, 20),
	}
}

func pendingQuota(due time.Time, amount string, currency domain.Currency) *domain.Quota {
	return &domain.Quota{
		Amount:   decimal.RequireFromString(amount),
		DueDate:  due,
		Status:   domain.QuotaPending,
		Currency: currency,
	}
}

func TestMonthlySums(t *testing.T) {
	march := makePeriod("p1", "2026-03", scl(5, time.March, 2026), scl(4, time.April, 2026))
	april := makePeriod("p2", "2026-04", scl(5, time.April, 2026), scl(4, time.May, 2026))
	periods := []*domain.BillingPeriod{april, march}

	quotas := []*domain.Quota{
		pendingQuota(scl(10, time.March, 2026), "45990", domain.CLP),
		pendingQuota(scl(20, time.March, 2026), "12500", domain.CLP),
		pendingQuota(scl(15, time.March, 2026), "129.99", domain.Dolar),
		pendingQuota(scl(10, time.April, 2026), "9990", domain.CLP),
		// Outside every period, must not appear anywhere.
		pendingQuota(scl(1, time.January, 2026), "99999", domain.CLP),
	}

	sums := MonthlySums(periods, quotas)
	if len(sums) != 3 {
		t.Fatalf("MonthlySums returned %d rows, want 3: %+v", len(sums), sums)
	}

	// Input order is april, march; within a period CLP precedes Dolar.
	wantKeys := []string{"2026-04-05 - 2026-05-04", "2026-03-05 - 2026-04-04", "2026-03-05 - 2026-04-04"}
	wantCurrencies := []domain.Currency{domain.CLP, domain.CLP, domain.Dolar}
	wantTotals := []string{"9990", "58490", "129.99"}
	for i, sum := range sums {
		if sum.PeriodKey != wantKeys[i] {
			t.Errorf("row %d: PeriodKey = %q, want %q", i, sum.PeriodKey, wantKeys[i])
		}
		if sum.Currency != wantCurrencies[i] {
			t.Errorf("row %d: Currency = %q, want %q", i, sum.Currency, wantCurrencies[i])
		}
		if !sum.TotalAmount.Equal(decimal.RequireFromString(wantTotals[i])) {
			t.Errorf("row %d: TotalAmount = %s, want %s", i, sum.TotalAmount, wantTotals[i])
		}
	}
}

func TestMonthlySums_OmitsEmptyPeriods(t *testing.T) {
	march := makePeriod("p1", "2026-03", scl(5, time.March, 2026), scl(4, time.April, 2026))
	april := makePeriod("p2", "2026-04", scl(5, time.April, 2026), scl(4, time.May, 2026))

	quotas := []*domain.Quota{
		pendingQuota(scl(10, time.March, 2026), "1000", domain.CLP),
	}

	sums := MonthlySums([]*domain.BillingPeriod{april, march}, quotas)
	if len(sums) != 1 {
		t.Fatalf("MonthlySums returned %d rows, want 1", len(sums))
	}
	if sums[0].PeriodKey != "2026-03-05 - 2026-04-04" {
		t.Errorf("PeriodKey = %q, empty April period should be absent", sums[0].PeriodKey)
	}
}

func TestMonthlyStats_CategoryBreakdown(t *testing.T) {
	march := makePeriod("p1", "2026-03", scl(1, time.March, 2026), scl(31, time.March, 2026))

	transactions := []*domain.Transaction{
		{Merchant: "MERCADO LIBRE", Amount: decimal.RequireFromString("45990"), Currency: domain.CLP, TransactionDate: scl(10, time.March, 2026)},
		{Merchant: "MERCADO LIBRE", Amount: decimal.RequireFromString("12500"), Currency: domain.CLP, TransactionDate: scl(20, time.March, 2026)},
		{Merchant: "NETFLIX.COM", Amount: decimal.RequireFromString("15.99"), Currency: domain.Dolar, TransactionDate: scl(15, time.March, 2026)},
		{Merchant: "", Amount: decimal.RequireFromString("5000"), Currency: domain.CLP, TransactionDate: scl(3, time.March, 2026)},
	}

	results := MonthlyStats([]*domain.BillingPeriod{march}, transactions)
	if len(results) != 1 {
		t.Fatalf("MonthlyStats returned %d periods, want 1", len(results))
	}

	entry := results[0]
	if entry.Month != "2026-03" {
		t.Errorf("Month = %q, want 2026-03", entry.Month)
	}
	if !entry.TotalCLP.Equal(decimal.RequireFromString("63490")) {
		t.Errorf("TotalCLP = %s, want 63490", entry.TotalCLP)
	}
	if !entry.TotalDolar.Equal(decimal.RequireFromString("15.99")) {
		t.Errorf("TotalDolar = %s, want 15.99", entry.TotalDolar)
	}

	meli := entry.CategoryBreakdown["MERCADO LIBRE"]
	if !meli.CLP.Equal(decimal.RequireFromString("58490")) {
		t.Errorf("MERCADO LIBRE CLP = %s, want 58490", meli.CLP)
	}
	other, ok := entry.CategoryBreakdown["Other"]
	if !ok {
		t.Fatal("transactions without a merchant should fall under Other")
	}
	if !other.CLP.Equal(decimal.RequireFromString("5000")) {
		t.Errorf("Other CLP = %s, want 5000", other.CLP)
	}
}

func TestMonthlyStats_SkipsInactivePeriods(t *testing.T) {
	march := makePeriod("p1", "2026-03", scl(1, time.March, 2026), scl(31, time.March, 2026))
	april := makePeriod("p2", "2026-04", scl(1, time.April, 2026), scl(30, time.April, 2026))

	transactions := []*domain.Transaction{
		{Merchant: "FALABELLA", Amount: decimal.RequireFromString("20000"), Currency: domain.CLP, TransactionDate: scl(12, time.April, 2026)},
	}

	results := MonthlyStats([]*domain.BillingPeriod{april, march}, transactions)
	if len(results) != 1 {
		t.Fatalf("MonthlyStats returned %d periods, want 1", len(results))
	}
	if results[0].Month != "2026-04" {
		t.Errorf("Month = %q, want 2026-04", results[0].Month)
	}
}

func TestGlobalDebtSummary(t *testing.T) {
	march := makePeriod("p1", "2026-03", scl(5, time.March, 2026), scl(4, time.April, 2026))
	april := makePeriod("p2", "2026-04", scl(5, time.April, 2026), scl(4, time.May, 2026))
	periods := []*domain.BillingPeriod{april, march}

	paid := pendingQuota(scl(10, time.March, 2026), "10000", domain.CLP)
	paid.Status = domain.QuotaPaid

	quotas := []*domain.Quota{
		paid,
		pendingQuota(scl(15, time.March, 2026), "25000", domain.CLP),
		pendingQuota(scl(20, time.March, 2026), "43.33", domain.Dolar),
		pendingQuota(scl(15, time.April, 2026), "25000", domain.CLP),
	}

	now := scl(10, time.March, 2026)
	summary := GlobalDebtSummary(now, periods, quotas)

	if summary.PendingCount != 3 {
		t.Errorf("PendingCount = %d, want 3 (paid quota excluded)", summary.PendingCount)
	}
	if !summary.TotalCLP.Equal(decimal.RequireFromString("50000")) {
		t.Errorf("TotalCLP = %s, want 50000", summary.TotalCLP)
	}
	if !summary.TotalUSD.Equal(decimal.RequireFromString("43.33")) {
		t.Errorf("TotalUSD = %s, want 43.33", summary.TotalUSD)
	}
	if summary.MonthsRemaining != 2 {
		t.Errorf("MonthsRemaining = %d, want 2", summary.MonthsRemaining)
	}
	if !summary.NextMonthCLP.Equal(decimal.RequireFromString("25000")) {
		t.Errorf("NextMonthCLP = %s, want 25000 (March period only)", summary.NextMonthCLP)
	}
	if !summary.NextMonthUSD.Equal(decimal.RequireFromString("43.33")) {
		t.Errorf("NextMonthUSD = %s, want 43.33", summary.NextMonthUSD)
	}
}
