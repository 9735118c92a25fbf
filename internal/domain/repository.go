package domain

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateOpen is returned by OpenLogRepository.Append when the natural
// key (email_id, opened_at, opens_count) already exists. The coordinator
// deduplicates upstream; this constraint is defense in depth.
var ErrDuplicateOpen = errors.New("open event already logged")

// Summary holds the headline analytics counts over the whole log.
type Summary struct {
	TotalOpens   int64 `json:"total_opens"`
	UniqueEmails int64 `json:"unique_emails"`
	UniqueLeads  int64 `json:"unique_leads"`
}

// LeadEngagement is one row of the top-leads ranking.
type LeadEngagement struct {
	LeadID       string `json:"lead_id"`
	LeadName     string `json:"lead_name"`
	TotalOpens   int64  `json:"total_opens"`
	UniqueEmails int64  `json:"unique_emails"`
	FirstOpen    string `json:"first_open"`
	LastOpen     string `json:"last_open"`
}

// HourBucket is the open count for one hour of day (0-23).
type HourBucket struct {
	Hour        int   `json:"hour"`
	OpensCount  int64 `json:"opens_count"`
	UniqueLeads int64 `json:"unique_leads"`
}

// WeekdayBucket is the open count for one day of week (0=Monday .. 6=Sunday).
type WeekdayBucket struct {
	DayOfWeek   int    `json:"day_of_week"`
	DayName     string `json:"day_name"`
	OpensCount  int64  `json:"opens_count"`
	UniqueLeads int64  `json:"unique_leads"`
}

// EngagementMetrics summarizes activity over a trailing day window.
type EngagementMetrics struct {
	PeriodDays       int     `json:"period_days"`
	TotalOpens       int64   `json:"total_opens"`
	UniqueEmails     int64   `json:"unique_emails"`
	UniqueLeads      int64   `json:"unique_leads"`
	AvgOpensPerEmail float64 `json:"avg_opens_per_email"`
	MaxOpensPerEmail int64   `json:"max_opens_per_email"`
}

// OpenLogRepository is the durable, append-only history of notified opens.
// Implementations provide their own concurrency control; callers never hold
// an external lock across these operations.
type OpenLogRepository interface {
	// Append writes one notified event. It returns ErrDuplicateOpen when the
	// natural key already exists instead of double-counting.
	Append(ctx context.Context, event *OpenEvent) error

	// Recent returns the most recent events ordered by opened_at descending.
	Recent(ctx context.Context, limit int) ([]OpenEvent, error)

	// ByDateRange returns events whose derived calendar date falls within
	// [startDate, endDate] (YYYY-MM-DD, inclusive), ordered by opened_at.
	ByDateRange(ctx context.Context, startDate, endDate string) ([]OpenEvent, error)

	// ByLead returns all events for one lead, newest first.
	ByLead(ctx context.Context, leadID string) ([]OpenEvent, error)

	// Summary returns total and distinct counts over the whole log.
	Summary(ctx context.Context) (Summary, error)

	// TopLeads ranks leads by open count, descending.
	TopLeads(ctx context.Context, limit int) ([]LeadEngagement, error)

	// OpensByHour returns the hour-of-day distribution, ordered by hour.
	OpensByHour(ctx context.Context) ([]HourBucket, error)

	// OpensByWeekday returns the day-of-week distribution, ordered by day.
	OpensByWeekday(ctx context.Context) ([]WeekdayBucket, error)

	// Engagement computes rolling metrics over the trailing day count.
	Engagement(ctx context.Context, days int) (EngagementMetrics, error)

	// All returns every logged event, newest first, for export.
	All(ctx context.Context) ([]OpenEvent, error)

	Close() error
}

// IndexStats describes the current recency index contents for operators.
// OldestEntry is the zero time when the index is empty.
type IndexStats struct {
	Size        int           `json:"size"`
	OldestEntry time.Time     `json:"oldest_entry,omitzero"`
	Retention   time.Duration `json:"retention"`
}

// RecencyIndex answers membership and insert for deduplication within a
// bounded trailing window. An entry is known while an unexpired mark exists
// with an opens count greater than or equal to the probe, so a count increase
// is notify-worthy and a stale regression reads as a duplicate.
type RecencyIndex interface {
	IsKnown(ctx context.Context, emailID string, opensCount int) (bool, error)
	Mark(ctx context.Context, emailID string, opensCount int, observedAt time.Time) error
	Stats(ctx context.Context) (IndexStats, error)
	Clear(ctx context.Context) error
}

// Notifier delivers one outbound notification for an open event. Channel
// selects a named destination; the empty string fans out to every configured
// destination.
type Notifier interface {
	NotifyOpen(ctx context.Context, event *OpenEvent, channel string) error
}

// Lead is the subset of CRM lead data the service cares about.
type Lead struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CRMClient is the boundary to the CRM's event log and lead directory.
type CRMClient interface {
	// RecentOpens queries the CRM event log for email-open activity within
	// the trailing lookback window and returns normalized events.
	RecentOpens(ctx context.Context, lookback time.Duration) ([]OpenEvent, error)

	// Lead fetches display metadata for one lead.
	Lead(ctx context.Context, leadID string) (Lead, error)
}
