package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/usecase"
)

// AnalyticsHandler exposes the read-only analytics surface over the open log.
type AnalyticsHandler struct {
	analytics *usecase.AnalyticsUseCase
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(analytics *usecase.AnalyticsUseCase, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

func (h *AnalyticsHandler) fail(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, domain.ErrValidation) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("analytics query failed", "query", what, "error", err)
	respondError(w, http.StatusInternalServerError, "query failed")
}

// Summary handles GET /analytics/summary.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.Summary(r.Context())
	if err != nil {
		h.fail(w, err, "summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Recent handles GET /analytics/recent?limit=N.
func (h *AnalyticsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	opens, err := h.analytics.Recent(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, err, "recent")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(opens),
		"opens": opens,
	})
}

// ByDate handles GET /analytics/by-date?start_date=...&end_date=...
func (h *AnalyticsHandler) ByDate(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	opens, err := h.analytics.ByDateRange(r.Context(), startDate, endDate)
	if err != nil {
		h.fail(w, err, "by-date")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
		"count":      len(opens),
		"opens":      opens,
	})
}

// ByLead handles GET /analytics/by-lead/{lead_id}.
func (h *AnalyticsHandler) ByLead(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("lead_id")

	opens, err := h.analytics.ByLead(r.Context(), leadID)
	if err != nil {
		h.fail(w, err, "by-lead")
		return
	}
	if len(opens) == 0 {
		respondError(w, http.StatusNotFound, "no email opens found for this lead")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"lead_id":     leadID,
		"lead_name":   opens[0].LeadName,
		"total_opens": len(opens),
		"opens":       opens,
	})
}

// TopLeads handles GET /analytics/top-leads?limit=N.
func (h *AnalyticsHandler) TopLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.analytics.TopLeads(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, err, "top-leads")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(leads),
		"leads": leads,
	})
}

// TimeOfDay handles GET /analytics/time-of-day.
func (h *AnalyticsHandler) TimeOfDay(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.TimeOfDay(r.Context())
	if err != nil {
		h.fail(w, err, "time-of-day")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// DayOfWeek handles GET /analytics/day-of-week.
func (h *AnalyticsHandler) DayOfWeek(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.DayOfWeek(r.Context())
	if err != nil {
		h.fail(w, err, "day-of-week")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Engagement handles GET /analytics/engagement?days=N.
func (h *AnalyticsHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.analytics.Engagement(r.Context(), queryInt(r, "days"))
	if err != nil {
		h.fail(w, err, "engagement")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// Export handles GET /analytics/export, streaming the full log as CSV.
func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=email_opens.csv`)

	count, err := h.analytics.ExportCSV(r.Context(), w)
	if err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error("csv export failed", "error", err, "rows_written", count)
		return
	}
	h.logger.Info("csv export completed", "rows", count)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
