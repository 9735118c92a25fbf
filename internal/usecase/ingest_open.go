package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/open-notifier/internal/adapter/metrics"
	"github.com/user/open-notifier/internal/domain"
)

// IngestOpenUseCase is the single funnel every open event passes through
// before a notification goes out, regardless of which producer observed it.
// It owns the recency index; producers only share state through here.
type IngestOpenUseCase struct {
	index         domain.RecencyIndex
	store         domain.OpenLogRepository
	notifier      domain.Notifier
	logger        *slog.Logger
	metrics       *metrics.NotifierMetrics
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewIngestOpenUseCase creates the ingestion coordinator. metrics may be nil
// in tests.
func NewIngestOpenUseCase(
	index domain.RecencyIndex,
	store domain.OpenLogRepository,
	notifier domain.Notifier,
	logger *slog.Logger,
	m *metrics.NotifierMetrics,
	notifyTimeout time.Duration,
) *IngestOpenUseCase {
	return &IngestOpenUseCase{
		index:         index,
		store:         store,
		notifier:      notifier,
		logger:        logger,
		metrics:       m,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// Ingest deduplicates, notifies, persists, and marks one open event, in that
// order. Persisting before marking the index means a crash in between costs
// at most one duplicate notification on the next observation, never a silent
// loss. The returned error is non-nil only for OutcomeError.
func (uc *IngestOpenUseCase) Ingest(ctx context.Context, event *domain.OpenEvent) (domain.Outcome, error) {
	if err := event.Validate(); err != nil {
		uc.countOutcome(domain.OutcomeError)
		return domain.OutcomeError, err
	}

	known, err := uc.index.IsKnown(ctx, event.EmailID, event.OpensCount)
	if err != nil {
		// A broken index must not stop notifications; at-least-once is the
		// contract, silent loss is not.
		uc.logger.Warn("recency index probe failed, proceeding as unseen",
			"error", err, "email_id", event.EmailID)
	}
	if known {
		uc.logger.Debug("duplicate open suppressed",
			"email_id", event.EmailID, "opens_count", event.OpensCount)
		uc.countOutcome(domain.OutcomeDuplicate)
		return domain.OutcomeDuplicate, nil
	}

	notifyCtx, cancel := context.WithTimeout(ctx, uc.notifyTimeout)
	defer cancel()
	if err := uc.notifier.NotifyOpen(notifyCtx, event, ""); err != nil {
		// Index and store stay untouched so the next observation retries.
		uc.logger.Error("notification send failed, event stays retryable",
			"error", err, "email_id", event.EmailID, "lead_id", event.LeadID)
		if uc.metrics != nil {
			uc.metrics.NotifySendFailures.Inc()
		}
		uc.countOutcome(domain.OutcomeError)
		return domain.OutcomeError, fmt.Errorf("send notification: %w", err)
	}

	event.NotifiedAt = uc.now().UTC()

	if err := uc.store.Append(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateOpen) {
			// Another producer won the race after our index probe. The row
			// exists exactly once; remember the key so we stop re-sending.
			uc.logger.Warn("open already logged, marking index",
				"email_id", event.EmailID, "opens_count", event.OpensCount)
			uc.mark(ctx, event)
			uc.countOutcome(domain.OutcomeNotified)
			return domain.OutcomeNotified, nil
		}
		// Notified but not logged: the most severe failure class. Leaving the
		// index unmarked lets the next observation retry the write at the
		// cost of a duplicate notification.
		uc.logger.Error("ALERT: open notified but not persisted",
			"alert", true, "error", err,
			"email_id", event.EmailID, "opens_count", event.OpensCount)
		if uc.metrics != nil {
			uc.metrics.PersistenceFailures.Inc()
		}
		uc.countOutcome(domain.OutcomeError)
		return domain.OutcomeError, fmt.Errorf("persist open event: %w", err)
	}

	uc.mark(ctx, event)
	uc.countOutcome(domain.OutcomeNotified)
	return domain.OutcomeNotified, nil
}

func (uc *IngestOpenUseCase) mark(ctx context.Context, event *domain.OpenEvent) {
	if err := uc.index.Mark(ctx, event.EmailID, event.OpensCount, uc.now()); err != nil {
		uc.logger.Warn("failed to mark recency index", "error", err, "email_id", event.EmailID)
	}
	if uc.metrics != nil {
		if stats, err := uc.index.Stats(ctx); err == nil {
			uc.metrics.RecencyIndexSize.Set(float64(stats.Size))
		}
	}
}

func (uc *IngestOpenUseCase) countOutcome(outcome domain.Outcome) {
	if uc.metrics != nil {
		uc.metrics.IngestOutcomes.WithLabelValues(string(outcome)).Inc()
	}
}
