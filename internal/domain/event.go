package domain

import (
	"errors"
	"time"
)

// OpenEvent represents one observed "email opened" occurrence, regardless of
// whether it arrived via the push webhook or the polling fallback.
type OpenEvent struct {
	EmailID    string    `json:"email_id"`
	LeadID     string    `json:"lead_id"`
	LeadName   string    `json:"lead_name"`
	Subject    string    `json:"subject"`
	Recipient  string    `json:"recipient"`
	OpensCount int       `json:"opens_count"`
	OpenedAt   time.Time `json:"opened_at"`
	NotifiedAt time.Time `json:"notified_at,omitempty"`
}

// ErrValidation marks events that are missing required fields.
var ErrValidation = errors.New("invalid open event")

// Validate checks the fields every producer must supply before ingestion.
func (e *OpenEvent) Validate() error {
	if e.EmailID == "" {
		return errors.Join(ErrValidation, errors.New("email_id is required"))
	}
	if e.OpenedAt.IsZero() {
		return errors.Join(ErrValidation, errors.New("opened_at is required"))
	}
	if e.OpensCount < 1 {
		return errors.Join(ErrValidation, errors.New("opens_count must be >= 1"))
	}
	return nil
}

// Derived calendar fields are computed from OpenedAt so that the write path
// and the read path can never disagree about them.

// DateOpened returns the calendar date of the open in YYYY-MM-DD form.
func (e *OpenEvent) DateOpened() string {
	return e.OpenedAt.Format("2006-01-02")
}

// YearOpened returns the calendar year of the open.
func (e *OpenEvent) YearOpened() int {
	return e.OpenedAt.Year()
}

// MonthOpened returns the calendar month of the open (1-12).
func (e *OpenEvent) MonthOpened() int {
	return int(e.OpenedAt.Month())
}

// HourOpened returns the hour of day of the open (0-23).
func (e *OpenEvent) HourOpened() int {
	return e.OpenedAt.Hour()
}

// DayOfWeek returns the weekday of the open with 0=Monday .. 6=Sunday.
func (e *OpenEvent) DayOfWeek() int {
	return (int(e.OpenedAt.Weekday()) + 6) % 7
}

var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// WeekdayName maps a 0=Monday .. 6=Sunday index to its label.
func WeekdayName(day int) string {
	if day < 0 || day > 6 {
		return "Unknown"
	}
	return weekdayNames[day]
}

// Outcome is the result of funneling one event through the ingestion
// coordinator.
type Outcome string

const (
	// OutcomeNotified means a notification was sent and the event was logged.
	OutcomeNotified Outcome = "notified"
	// OutcomeDuplicate means the dedup key was already seen within the
	// recency window; nothing was sent or written.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the record described something other than an
	// email open and was acknowledged without processing.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeError means a collaborator or persistence failure; the event
	// stays retryable on its next observation.
	OutcomeError Outcome = "error"
)
