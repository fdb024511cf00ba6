package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
)

// knownErrorCodes are stable codes surfaced through the API. A handler
// embeds the code in its error message; anything else falls back to a
// class-derived code.
var knownErrorCodes = []string{
	"InvalidRequest",
	"InvalidPlan",
	"UnrenderablePlan",
	"EmptySource",
	"EncodeError",
	"CorruptIntermediate",
	"OutputWriteError",
	"WorkerLost",
}

func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, job *media.Job, jobErr error) {
	class := services.Classify(jobErr)
	code := ErrorCode(jobErr)

	if err := m.store.FailJob(ctx, job.ID, media.JobError{
		Code:    code,
		Message: jobErr.Error(),
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if !errors.Is(err, registry.ErrConflict) {
			m.setLastError(err)
			logger.Error("failed to persist job failure", logging.Error(err))
		}
		return
	}
	m.cleanupJob(job.ID, logger)

	retrying := class.Retryable() && job.Attempt < m.maxAttempts(job.Kind)
	logger.Error("job failed",
		logging.Error(jobErr),
		logging.String("class", string(class)),
		logging.String("code", code),
		logging.Bool("retrying", retrying))
	if !retrying {
		m.notifyFailure(ctx, logger, job, media.JobError{Code: code, Message: jobErr.Error()})
		return
	}

	delay := m.retryDelay(job.Attempt)
	if _, err := m.store.CreateDelayedJob(ctx, job.MediaID, job.Kind, job.InputJSON, job.Attempt+1, time.Now().UTC().Add(delay)); err != nil {
		m.setLastError(err)
		logger.Error("failed to schedule retry", logging.Error(err))
		return
	}
	logger.Info("retry scheduled",
		logging.Int("next_attempt", job.Attempt+1),
		logging.Duration("delay", delay))
}

// maxAttempts returns the attempt budget for a kind. Story planning gets
// a tighter budget since its contract failures rarely clear on retry.
func (m *Manager) maxAttempts(kind media.JobKind) int {
	if kind == media.JobPlanStory && m.cfg.Workflow.MaxAttemptsPlanStory > 0 {
		return m.cfg.Workflow.MaxAttemptsPlanStory
	}
	if m.cfg.Workflow.MaxAttemptsDefault > 0 {
		return m.cfg.Workflow.MaxAttemptsDefault
	}
	return 1
}

// retryDelay computes exponential backoff with jitter for the next
// attempt following the given one.
func (m *Manager) retryDelay(attempt int) time.Duration {
	base := m.cfg.Workflow.RetryBackoffBaseSeconds
	if base <= 0 {
		base = 1
	}
	seconds := base
	for i := 1; i < attempt; i++ {
		seconds *= 2
	}
	delay := time.Duration(seconds) * time.Second
	if jitter := m.cfg.Workflow.RetryJitterSeconds; jitter > 0 {
		delay += time.Duration(rand.Intn(jitter*1000)) * time.Millisecond
	}
	return delay
}

// ErrorCode extracts the first stable code named in the error message,
// falling back to a class-level code.
func ErrorCode(err error) string {
	msg := err.Error()
	for _, code := range knownErrorCodes {
		if strings.Contains(msg, code) {
			return code
		}
	}
	switch services.Classify(err) {
	case services.ClassInput:
		return "InvalidRequest"
	case services.ClassContract:
		return "ContractViolation"
	case services.ClassFatal:
		return "InternalError"
	default:
		return "TransientFailure"
	}
}
