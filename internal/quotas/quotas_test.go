package quotas

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

// mockQuotaStore keeps quota sets in memory, keyed by transaction ID.
type mockQuotaStore struct {
	byTransaction map[string][]*domain.Quota
	failCreate    bool
}

func newMockQuotaStore() *mockQuotaStore {
	return &mockQuotaStore{byTransaction: make(map[string][]*domain.Quota)}
}

func (m *mockQuotaStore) ListByTransaction(_ context.Context, transactionID string) ([]*domain.Quota, error) {
	return m.byTransaction[transactionID], nil
}

func (m *mockQuotaStore) DeleteForTransaction(_ context.Context, transactionID string) (int, error) {
	n := len(m.byTransaction[transactionID])
	delete(m.byTransaction, transactionID)
	return n, nil
}

func (m *mockQuotaStore) CreateBatch(_ context.Context, transactionID string, quotas []*domain.Quota) error {
	if m.failCreate {
		return errors.New("store unavailable")
	}
	m.byTransaction[transactionID] = append(m.byTransaction[transactionID], quotas...)
	return nil
}

type mockTransactionReader struct {
	byID map[string]*domain.Transaction
}

func (m *mockTransactionReader) FindByID(_ context.Context, id string) (*domain.Transaction, error) {
	tx, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("FindByID: %s: %w", id, ErrNotFound)
	}
	return tx, nil
}

func santiagoDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, dates.Santiago())
}

func TestSplitAmounts_RemainderGoesLast(t *testing.T) {
	amounts := SplitAmounts(decimal.NewFromInt(10000), domain.CLP, 3)

	want := []string{"3333", "3333", "3334"}
	for i, w := range want {
		if amounts[i].String() != w {
			t.Errorf("amounts[%d] = %s, want %s", i, amounts[i], w)
		}
	}
}

func TestSplitAmounts_SumsExactly(t *testing.T) {
	totals := []struct {
		amount   string
		currency domain.Currency
	}{
		{"10000", domain.CLP},
		{"99999", domain.CLP},
		{"1", domain.CLP},
		{"129.99", domain.Dolar},
		{"0.05", domain.Dolar},
	}

	for _, tc := range totals {
		total := decimal.RequireFromString(tc.amount)
		for count := MinInstallments; count <= MaxInstallments; count++ {
			amounts := SplitAmounts(total, tc.currency, count)

			sum := decimal.Zero
			for _, a := range amounts {
				sum = sum.Add(a)
			}
			if !sum.Equal(total) {
				t.Fatalf("%s %s / %d: sum = %s, want %s", tc.amount, tc.currency, count, sum, total)
			}

			// Last quota = total − floor(total/n)·(n−1).
			floor := total.Div(decimal.NewFromInt(int64(count))).RoundDown(tc.currency.Exponent())
			wantLast := total.Sub(floor.Mul(decimal.NewFromInt(int64(count - 1))))
			if !amounts[count-1].Equal(wantLast) {
				t.Fatalf("%s / %d: last = %s, want %s", tc.amount, count, amounts[count-1], wantLast)
			}
		}
	}
}

func TestDueDates_LumpSumKeepsTransactionDate(t *testing.T) {
	txDate := time.Date(2026, time.March, 15, 18, 45, 0, 0, dates.Santiago())
	due := DueDates(txDate, 1)

	if len(due) != 1 || !due[0].Equal(txDate) {
		t.Errorf("DueDates(1) = %v, want the transaction date itself", due)
	}
}

func TestDueDates_MultiInstallmentStartsNextMonth(t *testing.T) {
	txDate := time.Date(2026, time.March, 15, 18, 45, 0, 0, dates.Santiago())
	due := DueDates(txDate, 3)

	want := []time.Time{
		santiagoDate(2026, time.April, 15),
		santiagoDate(2026, time.May, 15),
		santiagoDate(2026, time.June, 15),
	}
	for i := range want {
		if !due[i].Equal(want[i]) {
			t.Errorf("due[%d] = %v, want %v", i, due[i], want[i])
		}
	}
}

func TestDueDates_ClampsShortMonths(t *testing.T) {
	txDate := time.Date(2026, time.January, 31, 10, 0, 0, 0, dates.Santiago())
	due := DueDates(txDate, 2)

	if want := santiagoDate(2026, time.February, 28); !due[0].Equal(want) {
		t.Errorf("due[0] = %v, want clamped %v", due[0], want)
	}
	if want := santiagoDate(2026, time.March, 31); !due[1].Equal(want) {
		t.Errorf("due[1] = %v, want %v", due[1], want)
	}
}

func TestGenerator_SplitReplacesWholeSet(t *testing.T) {
	tx := &domain.Transaction{
		ID:              "tx1",
		Amount:          decimal.NewFromInt(10000),
		Currency:        domain.CLP,
		TransactionDate: santiagoDate(2026, time.March, 15),
	}
	store := newMockQuotaStore()
	g := NewGenerator(&mockTransactionReader{byID: map[string]*domain.Transaction{"tx1": tx}}, store)

	first, err := g.Split(context.Background(), "tx1", 3)
	if err != nil {
		t.Fatalf("first Split: %v", err)
	}
	if first.Deleted != 0 || first.Created != 3 {
		t.Errorf("first Split = deleted %d created %d, want 0/3", first.Deleted, first.Created)
	}

	second, err := g.Split(context.Background(), "tx1", 5)
	if err != nil {
		t.Fatalf("second Split: %v", err)
	}
	if second.Deleted != 3 || second.Created != 5 {
		t.Errorf("second Split = deleted %d created %d, want 3/5", second.Deleted, second.Created)
	}
	if got := len(store.byTransaction["tx1"]); got != 5 {
		t.Errorf("stored quotas = %d, want exactly the second count", got)
	}

	for _, q := range second.Quotas {
		if q.Status != domain.QuotaPending {
			t.Errorf("quota %s status = %s, want pending", q.ID, q.Status)
		}
	}
}

func TestGenerator_SplitValidation(t *testing.T) {
	g := NewGenerator(&mockTransactionReader{byID: map[string]*domain.Transaction{}}, newMockQuotaStore())

	for _, count := range []int{0, -1, 49, 100} {
		_, err := g.Split(context.Background(), "tx1", count)
		if !errors.Is(err, ErrInvalidInstallments) {
			t.Errorf("Split(count=%d) err = %v, want ErrInvalidInstallments", count, err)
		}
	}

	_, err := g.Split(context.Background(), "missing", 3)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Split(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGenerator_InitializeMissing(t *testing.T) {
	txDate := santiagoDate(2026, time.March, 15)
	txs := []*domain.Transaction{
		{ID: "has-quotas", Amount: decimal.NewFromInt(5000), Currency: domain.CLP, TransactionDate: txDate},
		{ID: "bare", Amount: decimal.NewFromInt(7000), Currency: domain.CLP, TransactionDate: txDate},
	}
	store := newMockQuotaStore()
	store.byTransaction["has-quotas"] = []*domain.Quota{{ID: "q1", TransactionID: "has-quotas"}}

	g := NewGenerator(&mockTransactionReader{}, store)
	created, err := g.InitializeMissing(context.Background(), txs)
	if err != nil {
		t.Fatalf("InitializeMissing: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	quotas := store.byTransaction["bare"]
	if len(quotas) != 1 {
		t.Fatalf("bare transaction quotas = %d, want 1", len(quotas))
	}
	if !quotas[0].Amount.Equal(decimal.NewFromInt(7000)) || !quotas[0].DueDate.Equal(txDate) {
		t.Errorf("lump-sum quota = %+v, want full amount due on the transaction date", quotas[0])
	}

	// Second run changes nothing.
	again, err := g.InitializeMissing(context.Background(), txs)
	if err != nil {
		t.Fatalf("InitializeMissing (again): %v", err)
	}
	if again != 0 {
		t.Errorf("second run created = %d, want 0", again)
	}
}
