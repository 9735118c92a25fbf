package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/open-notifier/internal/domain"
	"github.com/user/open-notifier/internal/domain/mocks"
	"github.com/user/open-notifier/internal/usecase"
)

func TestStatusHandler_Health(t *testing.T) {
	t.Run("polling enabled", func(t *testing.T) {
		status := usecase.PollStatus{State: usecase.PollIdle, CyclesCompleted: 4}
		h := NewStatusHandler(&mocks.MockRecencyIndex{}, &mocks.MockNotifier{}, func() usecase.PollStatus { return status }, true, testLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Status         string `json:"status"`
			CRMConfigured  bool   `json:"crm_configured"`
			PollingEnabled bool   `json:"polling_enabled"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "ok" || !resp.CRMConfigured || !resp.PollingEnabled {
			t.Errorf("unexpected health response: %+v", resp)
		}
	})

	t.Run("polling disabled", func(t *testing.T) {
		h := NewStatusHandler(&mocks.MockRecencyIndex{}, &mocks.MockNotifier{}, nil, false, testLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), `"polling":`) {
			t.Error("disabled polling must not report a poll status")
		}
	})
}

func TestStatusHandler_Stats(t *testing.T) {
	index := &mocks.MockRecencyIndex{
		Known: map[string]int{"email_1": 1, "email_2": 3},
		StatsResult: domain.IndexStats{
			Size:        2,
			OldestEntry: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
			Retention:   24 * time.Hour,
		},
	}
	h := NewStatusHandler(index, &mocks.MockNotifier{}, nil, false, testLogger())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var resp struct {
		TrackedEmails  int     `json:"tracked_emails"`
		RetentionHours float64 `json:"retention_hours"`
		OldestEntry    string  `json:"oldest_entry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TrackedEmails != 2 || resp.RetentionHours != 24 {
		t.Errorf("unexpected stats: %+v", resp)
	}
	if resp.OldestEntry != "2025-06-15T10:00:00Z" {
		t.Errorf("unexpected oldest entry: %q", resp.OldestEntry)
	}
}

func TestStatusHandler_TestNotification(t *testing.T) {
	t.Run("sends synthetic event", func(t *testing.T) {
		notifier := &mocks.MockNotifier{}
		h := NewStatusHandler(&mocks.MockRecencyIndex{}, notifier, nil, false, testLogger())

		rec := httptest.NewRecorder()
		h.TestNotification(rec, httptest.NewRequest(http.MethodPost, "/test/notification?channel=sales", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		sent := notifier.SentEvents()
		if len(sent) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(sent))
		}
		if !strings.HasPrefix(sent[0].EmailID, "test_") {
			t.Errorf("expected synthetic email id, got %q", sent[0].EmailID)
		}
		if notifier.Channels[0] != "sales" {
			t.Errorf("expected channel routing, got %q", notifier.Channels[0])
		}
	})

	t.Run("notifier failure", func(t *testing.T) {
		notifier := &mocks.MockNotifier{SendErr: errSentinel}
		h := NewStatusHandler(&mocks.MockRecencyIndex{}, notifier, nil, false, testLogger())

		rec := httptest.NewRecorder()
		h.TestNotification(rec, httptest.NewRequest(http.MethodPost, "/test/notification", nil))

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})
}
