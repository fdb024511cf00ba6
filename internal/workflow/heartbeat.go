package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storycut/internal/logging"
	"storycut/internal/registry"
)

// HeartbeatMonitor refreshes the lease of running jobs and reclaims jobs
// whose worker stopped heartbeating.
type HeartbeatMonitor struct {
	store    *registry.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a monitor with the given cadence.
func NewHeartbeatMonitor(store *registry.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// Run updates the lease heartbeat for one job until the context ends.
func (h *HeartbeatMonitor) Run(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateJobHeartbeat(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("heartbeat update failed",
					logging.String("job_id", jobID),
					logging.Error(err))
			}
		}
	}
}

// runReclaimer periodically fails running jobs whose heartbeat expired
// and enqueues successor attempts where the budget allows.
func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	if m.heartbeat.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeat.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reclaimOnce(ctx)
		}
	}
}

func (m *Manager) reclaimOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.heartbeat.timeout)
	reclaimed, err := m.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			m.logger.Error("stale job reclaim failed", logging.Error(err))
		}
		return
	}
	for _, job := range reclaimed {
		m.cleanupJob(job.ID, m.logger)
		logger := m.logger.With(
			logging.String("job_id", job.ID),
			logging.String("kind", string(job.Kind)))
		logger.Warn("reclaimed stale job")
		if job.Attempt >= m.maxAttempts(job.Kind) {
			continue
		}
		if _, err := m.store.CreateDelayedJob(ctx, job.MediaID, job.Kind, job.InputJSON, job.Attempt+1, time.Now().UTC().Add(m.retryDelay(job.Attempt))); err != nil {
			logger.Error("failed to enqueue successor", logging.Error(err))
		}
	}
}
