package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOpenEvent_Validate(t *testing.T) {
	base := OpenEvent{
		EmailID:    "acti_abc",
		LeadID:     "lead_abc",
		OpensCount: 1,
		OpenedAt:   time.Now(),
	}

	t.Run("valid", func(t *testing.T) {
		e := base
		if err := e.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("missing email id", func(t *testing.T) {
		e := base
		e.EmailID = ""
		if err := e.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("zero opened_at", func(t *testing.T) {
		e := base
		e.OpenedAt = time.Time{}
		if err := e.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("zero opens count", func(t *testing.T) {
		e := base
		e.OpensCount = 0
		if err := e.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestOpenEvent_DerivedFields(t *testing.T) {
	// 2025-06-15 was a Sunday.
	openedAt := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	e := OpenEvent{EmailID: "acti_abc", OpensCount: 1, OpenedAt: openedAt}

	if got := e.DateOpened(); got != "2025-06-15" {
		t.Errorf("DateOpened = %q, want 2025-06-15", got)
	}
	if got := e.YearOpened(); got != 2025 {
		t.Errorf("YearOpened = %d, want 2025", got)
	}
	if got := e.MonthOpened(); got != 6 {
		t.Errorf("MonthOpened = %d, want 6", got)
	}
	if got := e.HourOpened(); got != 14 {
		t.Errorf("HourOpened = %d, want 14", got)
	}
	if got := e.DayOfWeek(); got != 6 {
		t.Errorf("DayOfWeek = %d, want 6 (Sunday)", got)
	}

	// Monday maps to 0.
	e.OpenedAt = time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	if got := e.DayOfWeek(); got != 0 {
		t.Errorf("DayOfWeek = %d, want 0 (Monday)", got)
	}
}

func TestWeekdayName(t *testing.T) {
	if got := WeekdayName(0); got != "Monday" {
		t.Errorf("WeekdayName(0) = %q, want Monday", got)
	}
	if got := WeekdayName(6); got != "Sunday" {
		t.Errorf("WeekdayName(6) = %q, want Sunday", got)
	}
	if got := WeekdayName(7); got != "Unknown" {
		t.Errorf("WeekdayName(7) = %q, want Unknown", got)
	}
}
