package domain

import "github.com/shopspring/decimal"

// PeriodSum is one (billing period, currency) total of due quotas. Derived
// on each reporting request, never persisted, so there is no staleness to
// manage.
type PeriodSum struct {
	PeriodKey   string          `json:"period"`
	Currency    Currency        `json:"currency"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// CategoryAmounts holds per-currency totals for one category label.
type CategoryAmounts struct {
	CLP   decimal.Decimal `json:"CLP"`
	Dolar decimal.Decimal `json:"Dolar"`
}

// PeriodStats is the statement-style report for one billing period:
// transaction totals per currency plus a breakdown by merchant-derived
// category label.
type PeriodStats struct {
	Month             string                     `json:"month"`
	TotalCLP          decimal.Decimal            `json:"totalCLP"`
	TotalDolar        decimal.Decimal            `json:"totalDolar"`
	CategoryBreakdown map[string]CategoryAmounts `json:"categoryBreakdown"`
}

// DebtSummary aggregates pending quotas across every card of a user.
type DebtSummary struct {
	TotalCLP        decimal.Decimal `json:"totalCLP"`
	TotalUSD        decimal.Decimal `json:"totalUSD"`
	PendingCount    int             `json:"pendingCount"`
	MonthsRemaining int             `json:"monthsRemaining"`
	NextMonthCLP    decimal.Decimal `json:"nextMonthCLP"`
	NextMonthUSD    decimal.Decimal `json:"nextMonthUSD"`
}
