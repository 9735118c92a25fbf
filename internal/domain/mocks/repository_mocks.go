package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/user/open-notifier/internal/domain"
)

// MockRecencyIndex is a mock implementation of domain.RecencyIndex for testing.
type MockRecencyIndex struct {
	mu          sync.Mutex
	Known       map[string]int // email_id -> highest marked count
	Marked      []string
	ProbeErr    error
	MarkErr     error
	StatsResult domain.IndexStats
}

func (m *MockRecencyIndex) IsKnown(ctx context.Context, emailID string, opensCount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProbeErr != nil {
		return false, m.ProbeErr
	}
	max, ok := m.Known[emailID]
	return ok && opensCount <= max, nil
}

func (m *MockRecencyIndex) Mark(ctx context.Context, emailID string, opensCount int, observedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	if m.Known == nil {
		m.Known = make(map[string]int)
	}
	if opensCount > m.Known[emailID] {
		m.Known[emailID] = opensCount
	}
	m.Marked = append(m.Marked, emailID)
	return nil
}

func (m *MockRecencyIndex) Stats(ctx context.Context) (domain.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.StatsResult
	if stats.Size == 0 {
		stats.Size = len(m.Known)
	}
	return stats, nil
}

func (m *MockRecencyIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Known = make(map[string]int)
	m.Marked = nil
	return nil
}

// MockOpenLogRepository is a mock implementation of domain.OpenLogRepository
// for testing.
type MockOpenLogRepository struct {
	mu            sync.Mutex
	Appended      []domain.OpenEvent
	AppendErr     error
	RecentResult  []domain.OpenEvent
	RangeResult   []domain.OpenEvent
	LeadResult    []domain.OpenEvent
	SummaryResult domain.Summary
	TopResult     []domain.LeadEngagement
	HourResult    []domain.HourBucket
	WeekdayResult []domain.WeekdayBucket
	EngageResult  domain.EngagementMetrics
	AllResult     []domain.OpenEvent
	QueryErr      error
}

func (m *MockOpenLogRepository) Append(ctx context.Context, event *domain.OpenEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appended = append(m.Appended, *event)
	return nil
}

func (m *MockOpenLogRepository) AppendedEvents() []domain.OpenEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OpenEvent, len(m.Appended))
	copy(out, m.Appended)
	return out
}

func (m *MockOpenLogRepository) Recent(ctx context.Context, limit int) ([]domain.OpenEvent, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if limit < len(m.RecentResult) {
		return m.RecentResult[:limit], nil
	}
	return m.RecentResult, nil
}

func (m *MockOpenLogRepository) ByDateRange(ctx context.Context, startDate, endDate string) ([]domain.OpenEvent, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.RangeResult, nil
}

func (m *MockOpenLogRepository) ByLead(ctx context.Context, leadID string) ([]domain.OpenEvent, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.LeadResult, nil
}

func (m *MockOpenLogRepository) Summary(ctx context.Context) (domain.Summary, error) {
	if m.QueryErr != nil {
		return domain.Summary{}, m.QueryErr
	}
	return m.SummaryResult, nil
}

func (m *MockOpenLogRepository) TopLeads(ctx context.Context, limit int) ([]domain.LeadEngagement, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.TopResult, nil
}

func (m *MockOpenLogRepository) OpensByHour(ctx context.Context) ([]domain.HourBucket, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.HourResult, nil
}

func (m *MockOpenLogRepository) OpensByWeekday(ctx context.Context) ([]domain.WeekdayBucket, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.WeekdayResult, nil
}

func (m *MockOpenLogRepository) Engagement(ctx context.Context, days int) (domain.EngagementMetrics, error) {
	if m.QueryErr != nil {
		return domain.EngagementMetrics{}, m.QueryErr
	}
	result := m.EngageResult
	result.PeriodDays = days
	return result, nil
}

func (m *MockOpenLogRepository) All(ctx context.Context) ([]domain.OpenEvent, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.AllResult, nil
}

func (m *MockOpenLogRepository) Close() error { return nil }

// MockNotifier is a mock implementation of domain.Notifier for testing.
type MockNotifier struct {
	mu       sync.Mutex
	Sent     []domain.OpenEvent
	Channels []string
	SendErr  error
}

func (m *MockNotifier) NotifyOpen(ctx context.Context, event *domain.OpenEvent, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, *event)
	m.Channels = append(m.Channels, channel)
	return nil
}

func (m *MockNotifier) SentEvents() []domain.OpenEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OpenEvent, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// MockCRMClient is a mock implementation of domain.CRMClient for testing.
type MockCRMClient struct {
	mu           sync.Mutex
	OpensResult  []domain.OpenEvent
	OpensErr     error
	LeadResult   domain.Lead
	LeadErr      error
	FetchCount   int
	LastLookback time.Duration
}

func (m *MockCRMClient) RecentOpens(ctx context.Context, lookback time.Duration) ([]domain.OpenEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCount++
	m.LastLookback = lookback
	if m.OpensErr != nil {
		return nil, m.OpensErr
	}
	return m.OpensResult, nil
}

func (m *MockCRMClient) Lead(ctx context.Context, leadID string) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LeadErr != nil {
		return domain.Lead{}, m.LeadErr
	}
	return m.LeadResult, nil
}
