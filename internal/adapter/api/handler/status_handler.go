package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/usecase"
)

// StatusHandler serves the operational endpoints: health, index stats and
// the test notification trigger.
type StatusHandler struct {
	index      domain.RecencyIndex
	notifier   domain.Notifier
	pollStatus func() usecase.PollStatus
	crmWired   bool
	logger     *slog.Logger
}

// NewStatusHandler creates a StatusHandler. pollStatus may be nil when
// polling is disabled; crmWired reports whether a CRM client is configured.
func NewStatusHandler(index domain.RecencyIndex, notifier domain.Notifier, pollStatus func() usecase.PollStatus, crmWired bool, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		index:      index,
		notifier:   notifier,
		pollStatus: pollStatus,
		crmWired:   crmWired,
		logger:     logger,
	}
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":          "ok",
		"crm_configured":  h.crmWired,
		"polling_enabled": h.pollStatus != nil,
	}
	if h.pollStatus != nil {
		resp["polling"] = h.pollStatus()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Stats handles GET /stats, reporting the recency index state.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		h.logger.Error("index stats failed", "error", err)
		respondError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	resp := map[string]any{
		"tracked_emails":  stats.Size,
		"retention_hours": stats.Retention.Hours(),
	}
	if !stats.OldestEntry.IsZero() {
		resp["oldest_entry"] = stats.OldestEntry.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

// TestNotification handles POST /test/notification. It sends a synthetic
// open through the notifier directly, without touching the index or log.
func (h *StatusHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	now := nowUTC()
	event := domain.OpenEvent{
		EmailID:    "test_" + uuid.NewString(),
		LeadID:     "lead_test",
		LeadName:   "Test Company",
		Subject:    "Test notification",
		Recipient:  "test@example.com",
		OpensCount: 1,
		OpenedAt:   now,
		NotifiedAt: now,
	}

	channel := r.URL.Query().Get("channel")
	if err := h.notifier.NotifyOpen(r.Context(), &event, channel); err != nil {
		h.logger.Error("test notification failed", "error", err)
		respondError(w, http.StatusBadGateway, "notification failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "sent",
		"email_id": event.EmailID,
	})
}
