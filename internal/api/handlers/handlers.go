// Package handlers exposes the HTTP surface: import runs, installment
// management, billing periods, and reporting, all scoped to one card of the
// authenticated user.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuotas-app/server/internal/api/middleware"
	"github.com/cuotas-app/server/internal/domain"
	fsrepo "github.com/cuotas-app/server/internal/infra/firestore"
	"github.com/cuotas-app/server/internal/importer"
	"github.com/cuotas-app/server/internal/jobs"
	"github.com/cuotas-app/server/internal/period"
	"github.com/cuotas-app/server/internal/quotas"
	"github.com/cuotas-app/server/internal/stats"
)

// CardsHandler serves every card-scoped endpoint.
type CardsHandler struct {
	importer     *importer.Importer
	transactions *fsrepo.TransactionRepository
	quotas       *fsrepo.QuotaRepository
	periods      *fsrepo.BillingPeriodRepository
	log          zerolog.Logger
}

func NewCardsHandler(imp *importer.Importer, transactions *fsrepo.TransactionRepository, quotaRepo *fsrepo.QuotaRepository, periods *fsrepo.BillingPeriodRepository, log zerolog.Logger) *CardsHandler {
	return &CardsHandler{
		importer:     imp,
		transactions: transactions,
		quotas:       quotaRepo,
		periods:      periods,
		log:          log,
	}
}

// writeDomainError maps engine errors onto HTTP responses. The
// reauthorization case gets its own payload so clients can route the user to
// the OAuth consent flow instead of retrying.
func (h *CardsHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, importer.ErrReauthorizationRequired):
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":  "reauthorization required",
			"action": "reconnect your email account",
		})
	case errors.Is(err, quotas.ErrInvalidInstallments):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quotas.ErrNotManual):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quotas.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, period.ErrOverlap):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// ImportTransactions handles POST /api/cards/{cardID}/transactions/import.
func (h *CardsHandler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")

	result, err := h.importer.Import(r.Context(), userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if result.Orphaned == nil {
		result.Orphaned = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// SplitQuotas handles POST /api/cards/{cardID}/transactions/{txID}/quotas/split.
func (h *CardsHandler) SplitQuotas(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	txID := r.PathValue("txID")

	var req struct {
		NumberOfQuotas int `json:"numberOfQuotas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	gen := quotas.NewGenerator(h.transactions.ForCard(userID, cardID), h.quotas.ForCard(userID, cardID))
	result, err := gen.Split(r.Context(), txID, req.NumberOfQuotas)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// MonthlySum handles GET /api/cards/{cardID}/quotas/monthly-sum.
func (h *CardsHandler) MonthlySum(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	ctx := r.Context()

	periods, err := h.periods.ListDescending(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	transactions, err := h.transactions.ListActive(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	allQuotas, err := h.quotas.ListForCard(ctx, userID, cardID, transactions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	sums := stats.MonthlySums(periods, allQuotas)
	if sums == nil {
		sums = []domain.PeriodSum{}
	}
	middleware.WriteJSON(w, http.StatusOK, sums)
}

// MonthlyStats handles GET /api/cards/{cardID}/stats/monthly.
func (h *CardsHandler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	ctx := r.Context()

	periods, err := h.periods.ListDescending(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	transactions, err := h.transactions.ListActive(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result := stats.MonthlyStats(periods, transactions)
	if result == nil {
		result = []domain.PeriodStats{}
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// DebtSummary handles GET /api/cards/{cardID}/stats/debt.
func (h *CardsHandler) DebtSummary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	ctx := r.Context()

	periods, err := h.periods.ListDescending(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	transactions, err := h.transactions.ListActive(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	allQuotas, err := h.quotas.ListForCard(ctx, userID, cardID, transactions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats.GlobalDebtSummary(time.Now(), periods, allQuotas))
}

// OrphanedTransactions handles GET /api/cards/{cardID}/transactions/orphaned.
func (h *CardsHandler) OrphanedTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	ctx := r.Context()

	periods, err := h.periods.ListDescending(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	transactions, err := h.transactions.ListActive(ctx, userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report := period.FindOrphans(transactions, periods)
	orphaned := report.Orphaned
	if orphaned == nil {
		orphaned = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orphaned":        orphaned,
		"orphanedCount":   len(report.Orphaned),
		"suggestedPeriod": report.SuggestedPeriod,
	})
}

// CreateManualTransaction handles POST /api/cards/{cardID}/transactions/manual.
func (h *CardsHandler) CreateManualTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")

	var params quotas.ManualParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mgr := quotas.NewManager(h.transactions.ForCard(userID, cardID), h.quotas.ForCard(userID, cardID))
	result, err := mgr.CreateManual(r.Context(), cardID, params)
	if err != nil {
		if errors.Is(err, quotas.ErrInvalidInstallments) {
			h.writeDomainError(w, err)
		} else {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, result)
}

// UpdateManualTransaction handles PUT /api/cards/{cardID}/transactions/manual/{txID}.
func (h *CardsHandler) UpdateManualTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	txID := r.PathValue("txID")

	var params quotas.ManualParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mgr := quotas.NewManager(h.transactions.ForCard(userID, cardID), h.quotas.ForCard(userID, cardID))
	result, err := mgr.UpdateManual(r.Context(), txID, params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// DeleteManualTransaction handles DELETE /api/cards/{cardID}/transactions/manual/{txID}.
func (h *CardsHandler) DeleteManualTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	txID := r.PathValue("txID")

	mgr := quotas.NewManager(h.transactions.ForCard(userID, cardID), h.quotas.ForCard(userID, cardID))
	deleted, err := mgr.DeleteManual(r.Context(), txID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"quotasDeleted": deleted})
}

// CreateBillingPeriod handles POST /api/cards/{cardID}/billing-periods.
func (h *CardsHandler) CreateBillingPeriod(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")

	var p domain.BillingPeriod
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if p.Month == "" || p.StartDate.IsZero() || p.EndDate.IsZero() {
		middleware.WriteError(w, http.StatusBadRequest, "month, startDate and endDate are required")
		return
	}
	if p.EndDate.Before(p.StartDate) {
		middleware.WriteError(w, http.StatusBadRequest, "endDate must not precede startDate")
		return
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := h.periods.Create(r.Context(), userID, cardID, &p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, p)
}

// ListBillingPeriods handles GET /api/cards/{cardID}/billing-periods.
func (h *CardsHandler) ListBillingPeriods(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")

	periods, err := h.periods.ListDescending(r.Context(), userID, cardID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if periods == nil {
		periods = []*domain.BillingPeriod{}
	}
	middleware.WriteJSON(w, http.StatusOK, periods)
}

// PayQuota handles POST /api/cards/{cardID}/quotas/{txID}/{quotaID}/pay.
func (h *CardsHandler) PayQuota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	cardID := r.PathValue("cardID")
	txID := r.PathValue("txID")
	quotaID := r.PathValue("quotaID")

	if err := h.quotas.MarkPaid(r.Context(), userID, cardID, txID, quotaID, time.Now()); err != nil {
		h.writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": string(domain.QuotaPaid)})
}

// JobsHandler serves the async import-job endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{publisher: publisher, store: store, log: log}
}

// EnqueueImport handles POST /api/import-jobs.
func (h *JobsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreditCardID string `json:"creditCardId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CreditCardID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "creditCardId is required")
		return
	}

	job := &jobs.ImportJob{
		UserID:       middleware.UserID(r.Context()),
		CreditCardID: req.CreditCardID,
	}
	if err := h.publisher.PublishImport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/import-jobs/{jobID}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), r.PathValue("jobID"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/import-jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		CreditCardID: query.Get("creditCardId"),
		Status:       jobs.JobStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ImportJob{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
