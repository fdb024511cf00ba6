package workflow

import (
	"context"
	"encoding/json"
	"log/slog"

	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/notifications"
)

func (m *Manager) notifierSnapshot() notifications.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

// notifyCompletion pushes milestone notifications for the job kinds a
// human waits on. Notification failures never affect the job.
func (m *Manager) notifyCompletion(ctx context.Context, logger *slog.Logger, job *media.Job) {
	notifier := m.notifierSnapshot()
	if notifier == nil {
		return
	}

	var err error
	switch job.Kind {
	case media.JobProbe:
		mrec, merr := m.store.GetMedia(ctx, job.MediaID)
		if merr != nil {
			return
		}
		err = notifier.NotifyMediaReady(ctx, mrec.Title, mrec.ID)
	case media.JobPlanHeuristic, media.JobPlanStory:
		var result struct {
			PlanID string `json:"plan_id"`
		}
		if json.Unmarshal([]byte(job.ResultJSON), &result) != nil || result.PlanID == "" {
			return
		}
		plan, perr := m.store.GetPlan(ctx, result.PlanID)
		if perr != nil {
			return
		}
		err = notifier.NotifyPlanReady(ctx, plan.ID, plan.TotalKeep())
	case media.JobApplyPlan:
		var input struct {
			PlanID string `json:"plan_id"`
		}
		if json.Unmarshal([]byte(job.InputJSON), &input) != nil || input.PlanID == "" {
			return
		}
		renders, rerr := m.store.ListRendersByPlan(ctx, input.PlanID)
		if rerr != nil {
			return
		}
		for _, r := range renders {
			if r.Status != media.RenderCompleted {
				continue
			}
			if nerr := notifier.NotifyRenderCompleted(ctx, r.PlanID, string(r.AspectRatio), r.OutputURI); nerr != nil {
				err = nerr
			}
		}
	default:
		return
	}
	if err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
}

// notifyFailure alerts on a job that exhausted its attempts.
func (m *Manager) notifyFailure(ctx context.Context, logger *slog.Logger, job *media.Job, jobErr media.JobError) {
	notifier := m.notifierSnapshot()
	if notifier == nil {
		return
	}
	if err := notifier.NotifyJobFailed(ctx, job.Kind, jobErr); err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
}
