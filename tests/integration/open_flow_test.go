package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/open-notifier/internal/adapter/api"
	"github.com/user/open-notifier/internal/adapter/dedup"
	"github.com/user/open-notifier/internal/adapter/notifier"
	"github.com/user/open-notifier/internal/adapter/repository/sqlite"
	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/pkg/config"
	"github.com/user/open-notifier/internal/usecase"
)

const webhookSecret = "whsec_integration"

// fixture runs the full service in-process: a real sqlite store, a real
// in-memory recency index, the Discord notifier pointed at a stub endpoint,
// and the production router in front.
type fixture struct {
	server        *httptest.Server
	discordCalls  *atomic.Int64
	discordServer *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var discordCalls atomic.Int64
	discordServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		discordCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(discordServer.Close)

	store, err := sqlite.NewOpenLogRepository(filepath.Join(t.TempDir(), "opens.db"), logger)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index := dedup.NewMemoryIndex(24 * time.Hour)

	discord, err := notifier.NewDiscord(
		[]notifier.Webhook{{Name: "default", URL: discordServer.URL}},
		5*time.Second, 600, logger,
	)
	if err != nil {
		t.Fatalf("failed to build notifier: %v", err)
	}

	ingest := usecase.NewIngestOpenUseCase(index, store, discord, logger, nil, 5*time.Second)
	analytics := usecase.NewAnalyticsUseCase(store, logger)

	cfg := &config.Config{
		CloseWebhookSecret: webhookSecret,
		MaxPayloadSize:     1 << 20,
	}
	router := api.NewRouter(cfg, logger, api.RouterDeps{
		Ingest:    ingest,
		Analytics: analytics,
		Index:     index,
		Notifier:  discord,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{
		server:        server,
		discordCalls:  &discordCalls,
		discordServer: discordServer,
	}
}

func (f *fixture) deliverOpen(t *testing.T, emailID string, opens int) map[string]any {
	t.Helper()
	opened := make([]map[string]string, 0, opens)
	for i := 0; i < opens; i++ {
		opened = append(opened, map[string]string{
			"opened_at": time.Date(2025, 6, 16, 9, 30, i, 0, time.UTC).Format(time.RFC3339),
		})
	}
	body, _ := json.Marshal(map[string]any{
		"event": map[string]any{
			"object_type":    "activity.email",
			"action":         "updated",
			"changed_fields": []string{"opens"},
			"data": map[string]any{
				"id":        emailID,
				"lead_id":   "lead_acme",
				"lead_name": "Acme Corp",
				"subject":   "Renewal proposal",
				"to":        []map[string]string{{"email": "buyer@acme.test"}},
				"opens":     opened,
			},
		},
	})

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write(body)

	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/webhook/close", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("close-sig-timestamp", timestamp)
	req.Header.Set("close-sig-hash", hex.EncodeToString(mac.Sum(nil)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook delivery failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, payload)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode webhook response: %v", err)
	}
	return out
}

func firstOutcome(t *testing.T, resp map[string]any) string {
	t.Helper()
	results, ok := resp["results"].([]any)
	if !ok || len(results) == 0 {
		t.Fatalf("no results in response: %+v", resp)
	}
	record := results[0].(map[string]any)
	outcome, _ := record["outcome"].(string)
	return outcome
}

func (f *fixture) getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("GET %s: failed to decode: %v", path, err)
	}
}

func TestOpenFlow_EndToEnd(t *testing.T) {
	f := newFixture(t)

	// First observation notifies.
	resp := f.deliverOpen(t, "acti_email_1", 1)
	if got := firstOutcome(t, resp); got != "notified" {
		t.Fatalf("expected notified, got %s", got)
	}
	if f.discordCalls.Load() != 1 {
		t.Fatalf("expected 1 discord delivery, got %d", f.discordCalls.Load())
	}

	// Re-delivery of the same open is suppressed.
	resp = f.deliverOpen(t, "acti_email_1", 1)
	if got := firstOutcome(t, resp); got != "duplicate" {
		t.Fatalf("expected duplicate, got %s", got)
	}
	if f.discordCalls.Load() != 1 {
		t.Fatalf("duplicate must not notify, got %d deliveries", f.discordCalls.Load())
	}

	// A second open of the same email notifies again.
	resp = f.deliverOpen(t, "acti_email_1", 2)
	if got := firstOutcome(t, resp); got != "notified" {
		t.Fatalf("expected notified on count increase, got %s", got)
	}
	if f.discordCalls.Load() != 2 {
		t.Fatalf("expected 2 discord deliveries, got %d", f.discordCalls.Load())
	}

	// A different email from the same lead.
	f.deliverOpen(t, "acti_email_2", 1)

	// Analytics reflect the persisted log.
	var summary struct {
		TotalOpens   int64 `json:"total_opens"`
		UniqueEmails int64 `json:"unique_emails"`
		UniqueLeads  int64 `json:"unique_leads"`
	}
	f.getJSON(t, "/analytics/summary", &summary)
	if summary.TotalOpens != 3 || summary.UniqueEmails != 2 || summary.UniqueLeads != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	var recent struct {
		Count int `json:"count"`
	}
	f.getJSON(t, "/analytics/recent", &recent)
	if recent.Count != 3 {
		t.Errorf("expected 3 recent opens, got %d", recent.Count)
	}

	var byLead struct {
		LeadName   string `json:"lead_name"`
		TotalOpens int    `json:"total_opens"`
	}
	f.getJSON(t, "/analytics/by-lead/lead_acme", &byLead)
	if byLead.LeadName != "Acme Corp" || byLead.TotalOpens != 3 {
		t.Errorf("unexpected by-lead response: %+v", byLead)
	}

	// CSV export carries one row per logged open.
	csvResp, err := http.Get(f.server.URL + "/analytics/export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer csvResp.Body.Close()
	rows, err := csv.NewReader(csvResp.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse exported CSV: %v", err)
	}
	if len(rows) != 4 { // header + 3 opens
		t.Errorf("expected 4 CSV rows, got %d", len(rows))
	}

	// Index stats track both emails.
	var stats struct {
		TrackedEmails int `json:"tracked_emails"`
	}
	f.getJSON(t, "/stats", &stats)
	if stats.TrackedEmails != 2 {
		t.Errorf("expected 2 tracked emails, got %d", stats.TrackedEmails)
	}
}

func TestOpenFlow_RejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event": {"object_type": "activity.email", "action": "updated"}}`)
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/webhook/close", bytes.NewReader(body))
	req.Header.Set("close-sig-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("close-sig-hash", strings.Repeat("0", 64))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if f.discordCalls.Load() != 0 {
		t.Errorf("rejected delivery must not notify")
	}
}

// countingNotifier counts sends without any transport.
type countingNotifier struct {
	sent atomic.Int64
}

func (n *countingNotifier) NotifyOpen(_ context.Context, _ *domain.OpenEvent, _ string) error {
	n.sent.Add(1)
	return nil
}

func sampleEvent(emailID string) domain.OpenEvent {
	return domain.OpenEvent{
		EmailID:    emailID,
		LeadID:     "lead_acme",
		LeadName:   "Acme Corp",
		Subject:    "Renewal proposal",
		Recipient:  "buyer@acme.test",
		OpensCount: 1,
		OpenedAt:   time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC),
	}
}

func TestOpenFlow_SurvivesStoreReopen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	path := filepath.Join(dir, "opens.db")

	store, err := sqlite.NewOpenLogRepository(path, logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	index := dedup.NewMemoryIndex(24 * time.Hour)
	ingest := usecase.NewIngestOpenUseCase(index, store, &countingNotifier{}, logger, nil, time.Second)

	for i := 1; i <= 3; i++ {
		event := sampleEvent(fmt.Sprintf("acti_%d", i))
		if _, err := ingest.Ingest(t.Context(), &event); err != nil {
			t.Fatalf("ingest %d failed: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := sqlite.NewOpenLogRepository(path, logger)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	summary, err := reopened.Summary(t.Context())
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.TotalOpens != 3 {
		t.Errorf("expected 3 opens after reopen, got %d", summary.TotalOpens)
	}
}
