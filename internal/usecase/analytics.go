package usecase

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/user/open-notifier/internal/domain"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	defaultTopLeads    = 10
	maxTopLeads        = 100
	defaultEngageDays  = 30
	maxEngageDays      = 365
)

// AnalyticsUseCase is a stateless read facade over the open log. It validates
// caller input and shapes responses; every invariant about the data itself is
// the store's job.
type AnalyticsUseCase struct {
	store  domain.OpenLogRepository
	logger *slog.Logger
}

// NewAnalyticsUseCase creates the analytics query service.
func NewAnalyticsUseCase(store domain.OpenLogRepository, logger *slog.Logger) *AnalyticsUseCase {
	return &AnalyticsUseCase{store: store, logger: logger}
}

// Summary returns total and distinct counts over the whole log.
func (uc *AnalyticsUseCase) Summary(ctx context.Context) (domain.Summary, error) {
	return uc.store.Summary(ctx)
}

// Recent returns up to limit recent opens, newest first. Zero or negative
// limits fall back to the default; oversized limits are capped.
func (uc *AnalyticsUseCase) Recent(ctx context.Context, limit int) ([]domain.OpenEvent, error) {
	return uc.store.Recent(ctx, clampLimit(limit, defaultRecentLimit, maxRecentLimit))
}

// ByDateRange validates and runs an inclusive calendar-date range query.
func (uc *AnalyticsUseCase) ByDateRange(ctx context.Context, startDate, endDate string) ([]domain.OpenEvent, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", domain.ErrValidation)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", domain.ErrValidation)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date is before start_date", domain.ErrValidation)
	}
	return uc.store.ByDateRange(ctx, startDate, endDate)
}

// ByLead returns all opens for one lead.
func (uc *AnalyticsUseCase) ByLead(ctx context.Context, leadID string) ([]domain.OpenEvent, error) {
	if leadID == "" {
		return nil, fmt.Errorf("%w: lead id is required", domain.ErrValidation)
	}
	return uc.store.ByLead(ctx, leadID)
}

// TopLeads ranks leads by open count.
func (uc *AnalyticsUseCase) TopLeads(ctx context.Context, limit int) ([]domain.LeadEngagement, error) {
	return uc.store.TopLeads(ctx, clampLimit(limit, defaultTopLeads, maxTopLeads))
}

// TimeOfDayReport is the hour distribution with the busiest hour highlighted.
type TimeOfDayReport struct {
	TimeAnalysis []domain.HourBucket `json:"time_analysis"`
	BestHour     *int                `json:"best_hour"`
}

// TimeOfDay returns the hour-of-day distribution and its argmax.
func (uc *AnalyticsUseCase) TimeOfDay(ctx context.Context) (TimeOfDayReport, error) {
	buckets, err := uc.store.OpensByHour(ctx)
	if err != nil {
		return TimeOfDayReport{}, err
	}

	report := TimeOfDayReport{TimeAnalysis: buckets}
	var best int64 = -1
	for _, b := range buckets {
		if b.OpensCount > best {
			best = b.OpensCount
			hour := b.Hour
			report.BestHour = &hour
		}
	}
	return report, nil
}

// DayOfWeekReport is the weekday distribution with the busiest day labelled.
type DayOfWeekReport struct {
	DayAnalysis []domain.WeekdayBucket `json:"day_analysis"`
	BestDay     string                 `json:"best_day,omitempty"`
}

// DayOfWeek returns the weekday distribution and its argmax.
func (uc *AnalyticsUseCase) DayOfWeek(ctx context.Context) (DayOfWeekReport, error) {
	buckets, err := uc.store.OpensByWeekday(ctx)
	if err != nil {
		return DayOfWeekReport{}, err
	}

	report := DayOfWeekReport{DayAnalysis: buckets}
	var best int64 = -1
	for _, b := range buckets {
		if b.OpensCount > best {
			best = b.OpensCount
			report.BestDay = b.DayName
		}
	}
	return report, nil
}

// Engagement returns rolling metrics for the trailing day count.
func (uc *AnalyticsUseCase) Engagement(ctx context.Context, days int) (domain.EngagementMetrics, error) {
	return uc.store.Engagement(ctx, clampLimit(days, defaultEngageDays, maxEngageDays))
}

var exportHeader = []string{
	"Email ID", "Lead ID", "Lead Name", "Subject",
	"Recipient", "Opens Count", "Opened At", "Notified At", "Date",
}

// ExportCSV streams the full open log as CSV and returns the row count
// (excluding the header). Column order is stable for spreadsheet import.
func (uc *AnalyticsUseCase) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	events, err := uc.store.All(ctx)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return 0, err
	}
	for i := range events {
		e := &events[i]
		row := []string{
			e.EmailID,
			e.LeadID,
			e.LeadName,
			e.Subject,
			e.Recipient,
			strconv.Itoa(e.OpensCount),
			e.OpenedAt.Format(time.RFC3339),
			e.NotifiedAt.Format(time.RFC3339),
			e.DateOpened(),
		}
		if err := writer.Write(row); err != nil {
			return i, err
		}
	}
	writer.Flush()
	return len(events), writer.Error()
}

// clampLimit normalizes a caller-supplied limit: non-positive values get the
// default, oversized values are capped.
func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
