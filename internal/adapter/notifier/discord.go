package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/open-notifier/internal/domain"
)

// Webhook is one named Discord destination.
type Webhook struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LoadWebhooks resolves the Discord destinations. A JSON config file takes
// priority over the single-URL environment fallback. The file supports both
// {"webhooks": [{"name": ..., "url": ...}]} and a flat {"name": "url"} map.
func LoadWebhooks(configFile, fallbackURL string, logger *slog.Logger) []Webhook {
	if data, err := os.ReadFile(configFile); err == nil {
		if hooks, err := parseWebhookConfig(data); err == nil && len(hooks) > 0 {
			logger.Info("loaded discord webhooks from config file", "file", configFile, "count", len(hooks))
			return hooks
		} else if err != nil {
			logger.Warn("failed to parse discord config file, falling back", "file", configFile, "error", err)
		}
	}

	if fallbackURL != "" {
		return []Webhook{{Name: "default", URL: fallbackURL}}
	}
	return nil
}

func parseWebhookConfig(data []byte) ([]Webhook, error) {
	var wrapped struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Webhooks) > 0 {
		return wrapped.Webhooks, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	hooks := make([]Webhook, 0, len(flat))
	for name, url := range flat {
		if name == "webhooks" {
			continue
		}
		hooks = append(hooks, Webhook{Name: name, URL: url})
	}
	return hooks, nil
}

// Discord implements domain.Notifier by posting rich embeds to one or more
// Discord webhooks. Outbound calls are paced by a shared rate limiter so a
// burst of opens cannot trip Discord's webhook limits.
type Discord struct {
	webhooks []Webhook
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewDiscord creates a Discord notifier. At least one webhook is required.
func NewDiscord(webhooks []Webhook, timeout time.Duration, ratePerMinute int, logger *slog.Logger) (*Discord, error) {
	if len(webhooks) == 0 {
		return nil, errors.New("no discord webhooks configured")
	}
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	return &Discord{
		webhooks: webhooks,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute),
		logger:   logger.With("component", "discord_notifier"),
	}, nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title     string       `json:"title"`
	URL       string       `json:"url,omitempty"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Footer    struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

const embedColorGreen = 3066993

// NotifyOpen sends the open event to the named channel, or to every
// configured webhook when channel is empty. The send counts as successful if
// at least one destination accepts it; it fails only when all do, so the
// coordinator can treat the event as retryable.
func (d *Discord) NotifyOpen(ctx context.Context, event *domain.OpenEvent, channel string) error {
	targets := d.webhooks
	if channel != "" {
		targets = nil
		for _, w := range d.webhooks {
			if w.Name == channel {
				targets = append(targets, w)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("no discord webhook named %q", channel)
		}
	}

	payload, err := json.Marshal(d.buildPayload(event))
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	var delivered int
	var lastErr error
	for _, w := range targets {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		if err := d.post(ctx, w.URL, payload); err != nil {
			lastErr = err
			d.logger.Warn("discord webhook delivery failed", "webhook", w.Name, "error", err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("all discord webhooks failed: %w", lastErr)
	}
	return nil
}

func (d *Discord) buildPayload(event *domain.OpenEvent) map[string]any {
	subject := event.Subject
	if len(subject) > 100 {
		subject = subject[:100] + "..."
	}

	e := embed{
		Title: "\U0001F4E7 Email Opened",
		Color: embedColorGreen,
		Fields: []embedField{
			{Name: "Lead", Value: event.LeadName, Inline: true},
			{Name: "Recipient", Value: event.Recipient, Inline: true},
			{Name: "Subject", Value: subject},
			{Name: "Opens Count", Value: fmt.Sprintf("%d", event.OpensCount), Inline: true},
			{Name: "Opened At", Value: event.OpenedAt.Format("2006-01-02 15:04:05"), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	e.Footer.Text = "Email ID: " + event.EmailID
	if event.LeadID != "" {
		e.URL = "https://app.close.com/lead/" + event.LeadID + "/"
	}

	return map[string]any{"embeds": []embed{e}}
}

func (d *Discord) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord responded %d", resp.StatusCode)
	}
	return nil
}
