package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/lib/pq"

	"github.com/user/open-notifier/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS email_open_log (
	id           BIGSERIAL PRIMARY KEY,
	email_id     VARCHAR(100) NOT NULL,
	lead_id      VARCHAR(100) NOT NULL,
	lead_name    VARCHAR(255) NOT NULL,
	subject      VARCHAR(500) NOT NULL,
	recipient    VARCHAR(255) NOT NULL,
	opens_count  INTEGER NOT NULL DEFAULT 1,
	opened_at    TIMESTAMPTZ NOT NULL,
	notified_at  TIMESTAMPTZ NOT NULL,
	date_opened  VARCHAR(10) NOT NULL,
	year_opened  INTEGER NOT NULL,
	month_opened INTEGER NOT NULL,
	hour_opened  INTEGER NOT NULL,
	day_of_week  INTEGER NOT NULL,
	UNIQUE (email_id, opened_at, opens_count)
);
CREATE INDEX IF NOT EXISTS idx_open_log_lead_date      ON email_open_log (lead_id, date_opened);
CREATE INDEX IF NOT EXISTS idx_open_log_recipient_date ON email_open_log (recipient, date_opened);
CREATE INDEX IF NOT EXISTS idx_open_log_date_opened    ON email_open_log (date_opened, opened_at);
CREATE INDEX IF NOT EXISTS idx_open_log_year_month     ON email_open_log (year_opened, month_opened);
CREATE INDEX IF NOT EXISTS idx_open_log_email_opened   ON email_open_log (email_id, opened_at);
`

// Derived columns added after the table first shipped. ADD COLUMN IF NOT
// EXISTS makes the startup migration idempotent.
var derivedColumnDDL = []string{
	`ALTER TABLE email_open_log ADD COLUMN IF NOT EXISTS year_opened INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE email_open_log ADD COLUMN IF NOT EXISTS month_opened INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE email_open_log ADD COLUMN IF NOT EXISTS hour_opened INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE email_open_log ADD COLUMN IF NOT EXISTS day_of_week INTEGER NOT NULL DEFAULT 0`,
}

// OpenLogRepository implements domain.OpenLogRepository on PostgreSQL for
// deployments that have outgrown the embedded SQLite store. Row-level
// locking means writers never block readers of unrelated rows.
type OpenLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOpenLogRepository connects to PostgreSQL, fails fast when unreachable,
// and initializes the schema idempotently.
func NewOpenLogRepository(ctx context.Context, url string, logger *slog.Logger) (*OpenLogRepository, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &OpenLogRepository{db: db, logger: logger.With("component", "postgres_open_log")}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *OpenLogRepository) initSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	for _, ddl := range derivedColumnDDL {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate derived columns: %w", err)
		}
	}
	return nil
}

// Append writes one notified event. ON CONFLICT DO NOTHING on the natural key
// turns an exact re-insert into domain.ErrDuplicateOpen.
func (r *OpenLogRepository) Append(ctx context.Context, e *domain.OpenEvent) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO email_open_log
			(email_id, lead_id, lead_name, subject, recipient, opens_count,
			 opened_at, notified_at, date_opened, year_opened, month_opened,
			 hour_opened, day_of_week)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (email_id, opened_at, opens_count) DO NOTHING`,
		e.EmailID, e.LeadID, e.LeadName, e.Subject, e.Recipient, e.OpensCount,
		e.OpenedAt.UTC(), e.NotifiedAt.UTC(), e.DateOpened(), e.YearOpened(),
		e.MonthOpened(), e.HourOpened(), e.DayOfWeek(),
	)
	if err != nil {
		return fmt.Errorf("append open event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append open event: %w", err)
	}
	if affected == 0 {
		return domain.ErrDuplicateOpen
	}
	return nil
}

const eventColumns = `email_id, lead_id, lead_name, subject, recipient, opens_count, opened_at, notified_at`

func scanEvents(rows *sql.Rows) ([]domain.OpenEvent, error) {
	var events []domain.OpenEvent
	for rows.Next() {
		var e domain.OpenEvent
		if err := rows.Scan(&e.EmailID, &e.LeadID, &e.LeadName, &e.Subject,
			&e.Recipient, &e.OpensCount, &e.OpenedAt, &e.NotifiedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recent returns the most recent events, newest first.
func (r *OpenLogRepository) Recent(ctx context.Context, limit int) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM email_open_log
		ORDER BY opened_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent opens: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByDateRange returns events within the inclusive calendar-date range,
// ordered by opened_at.
func (r *OpenLogRepository) ByDateRange(ctx context.Context, startDate, endDate string) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM email_open_log
		WHERE date_opened >= $1 AND date_opened <= $2
		ORDER BY opened_at`, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("opens by date: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByLead returns all events for one lead, newest first.
func (r *OpenLogRepository) ByLead(ctx context.Context, leadID string) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM email_open_log
		WHERE lead_id = $1
		ORDER BY opened_at DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("opens by lead: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Summary returns total and distinct counts over the whole log.
func (r *OpenLogRepository) Summary(ctx context.Context) (domain.Summary, error) {
	var s domain.Summary
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT email_id), COUNT(DISTINCT lead_id)
		FROM email_open_log`).Scan(&s.TotalOpens, &s.UniqueEmails, &s.UniqueLeads)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}

// TopLeads ranks leads by open count, descending.
func (r *OpenLogRepository) TopLeads(ctx context.Context, limit int) ([]domain.LeadEngagement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT lead_id, lead_name, COUNT(*) AS total_opens,
		       COUNT(DISTINCT email_id), MIN(date_opened), MAX(date_opened)
		FROM email_open_log
		GROUP BY lead_id, lead_name
		ORDER BY total_opens DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top leads: %w", err)
	}
	defer rows.Close()

	var leads []domain.LeadEngagement
	for rows.Next() {
		var l domain.LeadEngagement
		if err := rows.Scan(&l.LeadID, &l.LeadName, &l.TotalOpens,
			&l.UniqueEmails, &l.FirstOpen, &l.LastOpen); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// OpensByHour returns the hour-of-day distribution.
func (r *OpenLogRepository) OpensByHour(ctx context.Context) ([]domain.HourBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hour_opened, COUNT(*), COUNT(DISTINCT lead_id)
		FROM email_open_log
		GROUP BY hour_opened
		ORDER BY hour_opened`)
	if err != nil {
		return nil, fmt.Errorf("opens by hour: %w", err)
	}
	defer rows.Close()

	var buckets []domain.HourBucket
	for rows.Next() {
		var b domain.HourBucket
		if err := rows.Scan(&b.Hour, &b.OpensCount, &b.UniqueLeads); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// OpensByWeekday returns the day-of-week distribution (0=Monday).
func (r *OpenLogRepository) OpensByWeekday(ctx context.Context) ([]domain.WeekdayBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day_of_week, COUNT(*), COUNT(DISTINCT lead_id)
		FROM email_open_log
		GROUP BY day_of_week
		ORDER BY day_of_week`)
	if err != nil {
		return nil, fmt.Errorf("opens by weekday: %w", err)
	}
	defer rows.Close()

	var buckets []domain.WeekdayBucket
	for rows.Next() {
		var b domain.WeekdayBucket
		if err := rows.Scan(&b.DayOfWeek, &b.OpensCount, &b.UniqueLeads); err != nil {
			return nil, err
		}
		b.DayName = domain.WeekdayName(b.DayOfWeek)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Engagement computes rolling metrics for the trailing day count, bounded on
// the indexed calendar-date column.
func (r *OpenLogRepository) Engagement(ctx context.Context, days int) (domain.EngagementMetrics, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	m := domain.EngagementMetrics{PeriodDays: days}
	var avg sql.NullFloat64
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT email_id), COUNT(DISTINCT lead_id),
		       AVG(opens_count), MAX(opens_count)
		FROM email_open_log
		WHERE date_opened >= $1`, cutoff).
		Scan(&m.TotalOpens, &m.UniqueEmails, &m.UniqueLeads, &avg, &max)
	if err != nil {
		return domain.EngagementMetrics{}, fmt.Errorf("engagement: %w", err)
	}
	m.AvgOpensPerEmail = math.Round(avg.Float64*100) / 100
	m.MaxOpensPerEmail = max.Int64
	return m, nil
}

// All returns every logged event, newest first.
func (r *OpenLogRepository) All(ctx context.Context) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM email_open_log
		ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("all opens: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Close releases the underlying connection pool.
func (r *OpenLogRepository) Close() error {
	return r.db.Close()
}
