package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/open-notifier/internal/adapter/api/handler"
	"github.com/user/open-notifier/internal/adapter/api/middleware"
	"github.com/user/open-notifier/internal/adapter/metrics"
	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/pkg/config"
	"github.com/user/open-notifier/internal/usecase"
)

// RouterDeps bundles the collaborators the HTTP surface needs.
type RouterDeps struct {
	Ingest     *usecase.IngestOpenUseCase
	Analytics  *usecase.AnalyticsUseCase
	Index      domain.RecencyIndex
	Notifier   domain.Notifier
	Leads      domain.CRMClient         // nil when no CRM API key is configured
	PollStatus func() usecase.PollStatus // nil when polling is disabled
	Metrics    *metrics.NotifierMetrics
}

// NewRouter creates and configures the main HTTP router for the notifier
// service. The webhook and health endpoints stay open (the webhook carries
// its own signature check); everything else sits behind the API key.
func NewRouter(cfg *config.Config, logger *slog.Logger, deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	webhookHandler := handler.NewWebhookHandler(deps.Ingest, deps.Leads, cfg.CloseWebhookSecret, cfg.MaxPayloadSize, logger, deps.Metrics)
	analyticsHandler := handler.NewAnalyticsHandler(deps.Analytics, logger)
	statusHandler := handler.NewStatusHandler(deps.Index, deps.Notifier, deps.PollStatus, deps.Leads != nil, logger)

	auth := middleware.Auth(cfg.APIKey, logger)

	mux.Handle("POST /webhook/close", webhookHandler)

	mux.HandleFunc("GET /health", statusHandler.Health)
	mux.Handle("GET /stats", auth(http.HandlerFunc(statusHandler.Stats)))
	mux.Handle("POST /test/notification", auth(http.HandlerFunc(statusHandler.TestNotification)))

	mux.Handle("GET /analytics/summary", auth(http.HandlerFunc(analyticsHandler.Summary)))
	mux.Handle("GET /analytics/recent", auth(http.HandlerFunc(analyticsHandler.Recent)))
	mux.Handle("GET /analytics/by-date", auth(http.HandlerFunc(analyticsHandler.ByDate)))
	mux.Handle("GET /analytics/by-lead/{lead_id}", auth(http.HandlerFunc(analyticsHandler.ByLead)))
	mux.Handle("GET /analytics/top-leads", auth(http.HandlerFunc(analyticsHandler.TopLeads)))
	mux.Handle("GET /analytics/time-of-day", auth(http.HandlerFunc(analyticsHandler.TimeOfDay)))
	mux.Handle("GET /analytics/day-of-week", auth(http.HandlerFunc(analyticsHandler.DayOfWeek)))
	mux.Handle("GET /analytics/engagement", auth(http.HandlerFunc(analyticsHandler.Engagement)))
	mux.Handle("GET /analytics/export", auth(http.HandlerFunc(analyticsHandler.Export)))

	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Logging(logger)(mux)
}
