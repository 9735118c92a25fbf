package crm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const eventLogPage = `{
	"data": [
		{
			"object_type": "activity.email",
			"action": "updated",
			"changed_fields": ["opens", "date_updated"],
			"data": {
				"id": "acti_1",
				"lead_id": "lead_1",
				"subject": "Pricing follow-up",
				"to": [{"email": "buyer@example.com"}],
				"opens": [
					{"opened_at": "2025-03-10T09:00:00Z"},
					{"opened_at": "2025-03-10T11:30:00Z"}
				]
			}
		},
		{
			"object_type": "activity.email",
			"action": "updated",
			"changed_fields": ["status"],
			"data": {"id": "acti_2", "lead_id": "lead_1", "opens": []}
		},
		{
			"object_type": "activity.note",
			"action": "updated",
			"changed_fields": ["opens"],
			"data": {"id": "note_1", "lead_id": "lead_1"}
		}
	]
}`

func TestCloseClient_RecentOpens(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		sawAuth = ok && user == "api_key_test"
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/event/":
			if got := r.URL.Query().Get("object_type"); got != "activity.email" {
				t.Errorf("object_type = %q", got)
			}
			if r.URL.Query().Get("date_created__gt") == "" {
				t.Error("missing date_created__gt")
			}
			io.WriteString(w, eventLogPage)
		case r.URL.Path == "/lead/lead_1/":
			io.WriteString(w, `{"id": "lead_1", "display_name": "Acme"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewCloseClient("api_key_test", srv.URL, 5*time.Second, discardLogger())
	events, err := client.RecentOpens(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("recent opens failed: %v", err)
	}
	if !sawAuth {
		t.Error("expected basic auth with the API key")
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (non-open activity filtered out)", len(events))
	}
	e := events[0]
	if e.EmailID != "acti_1" || e.LeadID != "lead_1" {
		t.Errorf("unexpected identifiers: %+v", e)
	}
	if e.LeadName != "Acme" {
		t.Errorf("lead name = %q, want Acme", e.LeadName)
	}
	if e.OpensCount != 2 {
		t.Errorf("opens count = %d, want 2", e.OpensCount)
	}
	want := time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC)
	if !e.OpenedAt.Equal(want) {
		t.Errorf("opened at = %v, want %v (latest open)", e.OpenedAt, want)
	}
}

func TestCloseClient_RecentOpens_LeadLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/event/" {
			io.WriteString(w, eventLogPage)
			return
		}
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewCloseClient("api_key_test", srv.URL, 5*time.Second, discardLogger())
	events, err := client.RecentOpens(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("recent opens failed: %v", err)
	}
	if len(events) != 1 || events[0].LeadName != "Unknown" {
		t.Errorf("expected placeholder lead name, got %+v", events)
	}
}

func TestCloseClient_RecentOpens_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewCloseClient("api_key_test", srv.URL, 5*time.Second, discardLogger())
	if _, err := client.RecentOpens(context.Background(), 10*time.Minute); err == nil {
		t.Fatal("expected error on event log failure")
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	timestamp := "1710054000"
	body := []byte(`{"event": {}}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !VerifySignature(secret, timestamp, body, valid) {
		t.Error("expected valid signature to verify")
	}
	if VerifySignature(secret, timestamp, body, "deadbeef") {
		t.Error("expected bogus signature to fail")
	}
	if VerifySignature(secret, "1710054001", body, valid) {
		t.Error("expected changed timestamp to fail")
	}
	if VerifySignature("other", timestamp, body, valid) {
		t.Error("expected wrong secret to fail")
	}
}
