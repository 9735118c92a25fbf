// Package crm holds the Close-style CRM boundary: the event-log/lead client
// used by the polling loop and the webhook signature check shared with the
// push receiver.
package crm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/open-notifier/internal/domain"
)

const eventPageLimit = 100

// CloseClient talks to a Close-style CRM API using basic auth with the API
// key as username.
type CloseClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewCloseClient creates a CRM client. Every request is bounded by timeout.
func NewCloseClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *CloseClient {
	return &CloseClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "close_client"),
	}
}

// EventEnvelope is one entry of the CRM event log, also the shape delivered
// by webhook pushes.
type EventEnvelope struct {
	ObjectType    string        `json:"object_type"`
	Action        string        `json:"action"`
	ChangedFields []string      `json:"changed_fields"`
	Data          EmailActivity `json:"data"`
}

// EmailActivity is the email activity payload inside an event envelope.
type EmailActivity struct {
	ID       string `json:"id"`
	LeadID   string `json:"lead_id"`
	LeadName string `json:"lead_name,omitempty"`
	Subject  string `json:"subject"`
	To       []struct {
		Email string `json:"email"`
	} `json:"to"`
	Opens []struct {
		OpenedAt string `json:"opened_at"`
	} `json:"opens"`
}

// IsEmailOpen reports whether the envelope describes an email-open update.
func (e *EventEnvelope) IsEmailOpen() bool {
	if e.ObjectType != "activity.email" || e.Action != "updated" {
		return false
	}
	for _, f := range e.ChangedFields {
		if f == "opens" {
			return true
		}
	}
	return false
}

// Normalize converts the envelope into a domain event. The cumulative opens
// count is the length of the opens list; the open timestamp is the latest
// entry, falling back to now when the source omits it.
func (e *EventEnvelope) Normalize(now time.Time) domain.OpenEvent {
	data := e.Data

	var recipient string
	if len(data.To) > 0 {
		recipient = data.To[0].Email
	}

	openedAt := now
	if n := len(data.Opens); n > 0 {
		if ts, err := time.Parse(time.RFC3339, data.Opens[n-1].OpenedAt); err == nil {
			openedAt = ts
		}
	}

	return domain.OpenEvent{
		EmailID:    data.ID,
		LeadID:     data.LeadID,
		LeadName:   data.LeadName,
		Subject:    data.Subject,
		Recipient:  recipient,
		OpensCount: len(data.Opens),
		OpenedAt:   openedAt,
	}
}

// RecentOpens queries the CRM event log for email activity updated within the
// trailing lookback window and returns normalized open events. Lead names are
// resolved per lead; a failed lookup degrades to "Unknown" rather than
// dropping the event.
func (c *CloseClient) RecentOpens(ctx context.Context, lookback time.Duration) ([]domain.OpenEvent, error) {
	params := url.Values{}
	params.Set("object_type", "activity.email")
	params.Set("action", "updated")
	params.Set("date_created__gt", time.Now().UTC().Add(-lookback).Format(time.RFC3339))
	params.Set("_limit", strconv.Itoa(eventPageLimit))

	var page struct {
		Data []EventEnvelope `json:"data"`
	}
	if err := c.get(ctx, "/event/?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}

	now := time.Now().UTC()
	leadNames := make(map[string]string)
	var events []domain.OpenEvent
	for i := range page.Data {
		env := &page.Data[i]
		if !env.IsEmailOpen() || len(env.Data.Opens) == 0 {
			continue
		}

		event := env.Normalize(now)
		if event.LeadName == "" {
			event.LeadName = c.leadName(ctx, event.LeadID, leadNames)
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *CloseClient) leadName(ctx context.Context, leadID string, cache map[string]string) string {
	if name, ok := cache[leadID]; ok {
		return name
	}
	name := "Unknown"
	if lead, err := c.Lead(ctx, leadID); err == nil && lead.DisplayName != "" {
		name = lead.DisplayName
	} else if err != nil {
		c.logger.Warn("failed to fetch lead, using placeholder name", "lead_id", leadID, "error", err)
	}
	cache[leadID] = name
	return name
}

// Lead fetches display metadata for one lead.
func (c *CloseClient) Lead(ctx context.Context, leadID string) (domain.Lead, error) {
	var lead domain.Lead
	if err := c.get(ctx, "/lead/"+leadID+"/", &lead); err != nil {
		return domain.Lead{}, fmt.Errorf("fetch lead %s: %w", leadID, err)
	}
	return lead, nil
}

func (c *CloseClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crm responded %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifySignature checks a webhook delivery's HMAC-SHA256 signature, computed
// over the timestamp header concatenated with the raw body and hex encoded.
// The comparison is constant time.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
