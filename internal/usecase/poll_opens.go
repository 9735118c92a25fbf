package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/open-notifier/internal/adapter/metrics"
	"github.com/user/open-notifier/internal/domain"
)

// PollState names the phase the polling loop is currently in.
type PollState string

const (
	PollIdle       PollState = "idle"
	PollFetching   PollState = "fetching"
	PollProcessing PollState = "processing"
)

// PollStatus is the operator-visible snapshot of the polling loop, used by
// the health endpoint to detect a stalled poller.
type PollStatus struct {
	State           PollState  `json:"state"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CyclesCompleted int64      `json:"cycles_completed"`
}

// PollOpensUseCase is the fallback producer: it periodically queries the CRM
// event log for a trailing window and funnels every open through the
// ingestion coordinator. Window overlap across cycles is intentional; the
// coordinator's dedup is what makes it correct.
type PollOpensUseCase struct {
	crm      domain.CRMClient
	ingest   *IngestOpenUseCase
	logger   *slog.Logger
	metrics  *metrics.NotifierMetrics
	interval time.Duration
	lookback time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	status PollStatus
}

// NewPollOpensUseCase creates the polling producer. metrics may be nil in
// tests.
func NewPollOpensUseCase(
	crm domain.CRMClient,
	ingest *IngestOpenUseCase,
	logger *slog.Logger,
	m *metrics.NotifierMetrics,
	interval, lookback, timeout time.Duration,
) *PollOpensUseCase {
	return &PollOpensUseCase{
		crm:      crm,
		ingest:   ingest,
		logger:   logger,
		metrics:  m,
		interval: interval,
		lookback: lookback,
		timeout:  timeout,
		status:   PollStatus{State: PollIdle},
	}
}

// Run loops until the context is cancelled. Fetch failures are logged and the
// loop continues at the next tick; a bad cycle is never fatal to the process.
func (uc *PollOpensUseCase) Run(ctx context.Context) {
	uc.logger.Info("polling loop started",
		"interval", uc.interval, "lookback", uc.lookback)

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("polling loop stopped")
			return
		case <-ticker.C:
			uc.RunCycle(ctx)
		}
	}
}

// RunCycle executes one fetch/process pass. Exposed so tests and operators
// can drive a cycle without the ticker.
func (uc *PollOpensUseCase) RunCycle(ctx context.Context) {
	uc.setState(PollFetching)
	defer uc.setState(PollIdle)

	fetchCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	events, err := uc.crm.RecentOpens(fetchCtx, uc.lookback)
	if err != nil {
		uc.logger.Error("poll fetch failed, will retry next cycle", "error", err)
		uc.recordCycle(false, err)
		return
	}

	uc.setState(PollProcessing)
	for i := range events {
		event := events[i]
		outcome, err := uc.ingest.Ingest(ctx, &event)
		if err != nil {
			// Collaborator errors retry naturally on a later cycle.
			uc.logger.Warn("failed to ingest polled open",
				"error", err, "email_id", event.EmailID)
			continue
		}
		uc.logger.Debug("polled open processed",
			"email_id", event.EmailID, "outcome", outcome)
	}
	uc.recordCycle(true, nil)
}

// Status returns a snapshot of the loop for health reporting.
func (uc *PollOpensUseCase) Status() PollStatus {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.status
}

func (uc *PollOpensUseCase) setState(state PollState) {
	uc.mu.Lock()
	uc.status.State = state
	uc.mu.Unlock()
}

func (uc *PollOpensUseCase) recordCycle(ok bool, err error) {
	uc.mu.Lock()
	uc.status.CyclesCompleted++
	if ok {
		now := time.Now().UTC()
		uc.status.LastSuccess = &now
		uc.status.LastError = ""
	} else if err != nil {
		uc.status.LastError = err.Error()
	}
	uc.mu.Unlock()

	if uc.metrics != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		uc.metrics.PollCycles.WithLabelValues(status).Inc()
	}
}
