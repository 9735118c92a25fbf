package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/user/open-notifier/internal/adapter/crm"
	"github.com/user/open-notifier/internal/adapter/metrics"
	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/usecase"
)

const (
	sigHashHeader      = "close-sig-hash"
	sigTimestampHeader = "close-sig-timestamp"
)

// WebhookHandler is the push receiver: it accepts CRM webhook deliveries,
// verifies their signature, extracts open events, and funnels each one
// through the ingestion coordinator independently.
type WebhookHandler struct {
	ingest         *usecase.IngestOpenUseCase
	leads          domain.CRMClient // nil when no CRM API key is configured
	secret         string
	maxPayloadSize int64
	logger         *slog.Logger
	metrics        *metrics.NotifierMetrics
}

// NewWebhookHandler creates a WebhookHandler. leads and m may be nil.
func NewWebhookHandler(
	ingest *usecase.IngestOpenUseCase,
	leads domain.CRMClient,
	secret string,
	maxPayloadSize int64,
	logger *slog.Logger,
	m *metrics.NotifierMetrics,
) *WebhookHandler {
	return &WebhookHandler{
		ingest:         ingest,
		leads:          leads,
		secret:         secret,
		maxPayloadSize: maxPayloadSize,
		logger:         logger,
		metrics:        m,
	}
}

// delivery is the wire shape of one webhook POST: either a single event
// envelope or a batch.
type delivery struct {
	Event  *crm.EventEnvelope  `json:"event"`
	Events []crm.EventEnvelope `json:"events"`
}

type recordResult struct {
	EmailID string         `json:"email_id"`
	Outcome domain.Outcome `json:"outcome"`
	Error   string         `json:"error,omitempty"`
}

// ServeHTTP processes one webhook delivery. Signature or shape failures are
// rejected before any side effect; each extracted record gets an independent
// outcome so one bad record never blocks the rest.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPayloadSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.reject(w, "Payload too large", http.StatusRequestEntityTooLarge, "rejected_payload")
			return
		}
		h.reject(w, "Bad request", http.StatusBadRequest, "rejected_payload")
		return
	}

	if h.secret != "" {
		signature := r.Header.Get(sigHashHeader)
		timestamp := r.Header.Get(sigTimestampHeader)
		if signature == "" || timestamp == "" {
			h.reject(w, "Missing signature headers", http.StatusUnauthorized, "rejected_signature")
			return
		}
		if !crm.VerifySignature(h.secret, timestamp, body, signature) {
			h.logger.Warn("webhook signature verification failed", "remote_addr", r.RemoteAddr)
			h.reject(w, "Invalid signature", http.StatusUnauthorized, "rejected_signature")
			return
		}
	}

	var d delivery
	if err := json.Unmarshal(body, &d); err != nil {
		h.reject(w, "Malformed payload", http.StatusBadRequest, "rejected_payload")
		return
	}
	envelopes := d.Events
	if d.Event != nil {
		envelopes = append(envelopes, *d.Event)
	}
	if len(envelopes) == 0 {
		h.reject(w, "No event in payload", http.StatusBadRequest, "rejected_payload")
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookDeliveries.WithLabelValues("accepted").Inc()
	}

	results := h.process(r.Context(), envelopes)
	respondJSON(w, http.StatusOK, map[string]any{
		"received": len(envelopes),
		"results":  results,
	})
}

func (h *WebhookHandler) process(ctx context.Context, envelopes []crm.EventEnvelope) []recordResult {
	results := make([]recordResult, 0, len(envelopes))
	for i := range envelopes {
		env := &envelopes[i]
		if !env.IsEmailOpen() || len(env.Data.Opens) == 0 {
			// Deliveries for other activity types are acknowledged, not errors.
			results = append(results, recordResult{EmailID: env.Data.ID, Outcome: domain.OutcomeIgnored})
			continue
		}

		event := env.Normalize(nowUTC())
		if event.LeadName == "" {
			event.LeadName = h.leadName(ctx, event.LeadID)
		}

		outcome, err := h.ingest.Ingest(ctx, &event)
		result := recordResult{EmailID: event.EmailID, Outcome: outcome}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (h *WebhookHandler) leadName(ctx context.Context, leadID string) string {
	if h.leads == nil || leadID == "" {
		return "Unknown"
	}
	lead, err := h.leads.Lead(ctx, leadID)
	if err != nil || lead.DisplayName == "" {
		h.logger.Warn("failed to resolve lead name", "lead_id", leadID, "error", err)
		return "Unknown"
	}
	return lead.DisplayName
}

func (h *WebhookHandler) reject(w http.ResponseWriter, msg string, status int, metric string) {
	if h.metrics != nil {
		h.metrics.WebhookDeliveries.WithLabelValues(metric).Inc()
	}
	http.Error(w, msg, status)
}
