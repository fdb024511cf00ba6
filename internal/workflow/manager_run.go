package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/stage"
)

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextQueued(ctx, time.Now().UTC())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to fetch next job", logging.Error(err))
			m.sleep(ctx, m.pollInterval)
			continue
		}
		if job == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}
		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// processJob drives one job from claim to a terminal status.
func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *media.Job) {
	logger = logger.With(
		logging.String("job_id", job.ID),
		logging.String("media_id", job.MediaID),
		logging.String("kind", string(job.Kind)),
		logging.Int("attempt", job.Attempt),
	)

	handler := m.Handler(job.Kind)
	if handler == nil {
		if err := m.store.ClaimJob(ctx, job.ID); err != nil {
			return
		}
		_ = m.store.FailJob(ctx, job.ID, media.JobError{
			Code:    "UnknownKind",
			Message: "no handler registered for kind " + string(job.Kind),
		})
		logger.Error("no handler for job kind")
		return
	}

	if !m.preconditionsMet(ctx, logger, job, handler) {
		return
	}

	if err := m.store.ClaimJob(ctx, job.ID); err != nil {
		if !errors.Is(err, registry.ErrConflict) {
			m.setLastError(err)
			logger.Error("claim failed", logging.Error(err))
		}
		return
	}
	job.Status = media.JobRunning

	if job.CancelRequested {
		_ = m.store.CancelRunningJob(ctx, job.ID)
		m.cleanupJob(job.ID, logger)
		logger.Info("job cancelled before start")
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.Run(hbCtx, &hbWG, job.ID)

	started := time.Now()
	err := handler.Prepare(ctx, job)
	if err == nil {
		err = handler.Execute(ctx, job)
	}
	stopHeartbeat()
	hbWG.Wait()

	switch {
	case err == nil, stage.AlreadyDone(err):
		if cerr := m.store.CompleteJob(ctx, job.ID, job.ResultJSON, job.Usage); cerr != nil {
			m.setLastError(cerr)
			logger.Error("failed to persist completion", logging.Error(cerr))
			return
		}
		m.cleanupJob(job.ID, logger)
		m.notifyCompletion(ctx, logger, job)
		logger.Info("job completed",
			logging.Duration("elapsed", time.Since(started)),
			logging.Bool("already_done", stage.AlreadyDone(err)))
	case stage.Cancelled(err):
		if cerr := m.store.CancelRunningJob(ctx, job.ID); cerr != nil && !errors.Is(cerr, registry.ErrConflict) {
			logger.Error("failed to persist cancellation", logging.Error(cerr))
		}
		m.cleanupJob(job.ID, logger)
		logger.Info("job cancelled", logging.Duration("elapsed", time.Since(started)))
	default:
		m.handleJobFailure(ctx, logger, job, err)
	}
}

// preconditionsMet defers the job when a required producer kind has not
// completed on the same media yet. Deferral keeps the job queued; it
// becomes claimable again after the configured delay.
func (m *Manager) preconditionsMet(ctx context.Context, logger *slog.Logger, job *media.Job, handler stage.Handler) bool {
	pre, ok := handler.(stage.Preconditions)
	if !ok {
		return true
	}
	for _, kind := range pre.Requires() {
		done, err := m.store.FindJob(ctx, job.MediaID, kind, media.JobCompleted)
		if err != nil {
			m.setLastError(err)
			logger.Error("precondition lookup failed", logging.Error(err))
			return false
		}
		if done == nil {
			delay := time.Duration(m.cfg.Workflow.PreconditionDelaySeconds) * time.Second
			if delay <= 0 {
				delay = 5 * time.Second
			}
			if err := m.store.DeferJob(ctx, job.ID, time.Now().UTC().Add(delay)); err != nil && !errors.Is(err, registry.ErrConflict) {
				logger.Error("defer failed", logging.Error(err))
			}
			logger.Debug("job deferred on precondition", logging.String("requires", string(kind)))
			return false
		}
	}
	return true
}

// cleanupJob drops the job's temp prefix once it is terminal.
func (m *Manager) cleanupJob(jobID string, logger *slog.Logger) {
	if m.blobs == nil {
		return
	}
	if err := m.blobs.CleanupJob(jobID); err != nil {
		logger.Warn("job temp cleanup failed", logging.Error(err))
	}
}
