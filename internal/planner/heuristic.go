package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/stage"
)

// HeuristicRequest selects what to plan from: a stored candidate by rank
// or a free-form source window.
type HeuristicRequest struct {
	CandidateIndex *int    `json:"candidate_index,omitempty"`
	Start          float64 `json:"start,omitempty"`
	End            float64 `json:"end,omitempty"`
}

// HeuristicPlanner is the PlanHeuristic job handler. It needs no model:
// the plan is a single keep window taken from the clip selector's output
// or from the caller.
type HeuristicPlanner struct {
	cfg    *config.Config
	store  *registry.Store
	logger *slog.Logger
}

// NewHeuristicPlanner constructs the heuristic planning stage.
func NewHeuristicPlanner(cfg *config.Config, store *registry.Store, logger *slog.Logger) *HeuristicPlanner {
	return &HeuristicPlanner{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "heuristic-plan"),
	}
}

// Kind identifies the job kind this handler serves.
func (p *HeuristicPlanner) Kind() media.JobKind { return media.JobPlanHeuristic }

// Requires declares that heuristic planning runs only on probed media.
func (p *HeuristicPlanner) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare validates configuration.
func (p *HeuristicPlanner) Prepare(ctx context.Context, job *media.Job) error {
	if p.cfg == nil || p.store == nil {
		return services.Wrap(services.ErrConfiguration, "planner", "prepare", "heuristic planner is not configured", nil)
	}
	return nil
}

// Execute builds and validates a single-window plan.
func (p *HeuristicPlanner) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, p.logger)
	m, err := p.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "planner", "execute", "media has no technical metadata", nil)
	}
	duration := m.Tech.Duration
	if duration <= 0 {
		return services.Wrap(services.ErrInput, "planner", "execute", "InvalidRequest: EmptySource", nil)
	}

	var req HeuristicRequest
	if strings.TrimSpace(job.InputJSON) != "" {
		if err := json.Unmarshal([]byte(job.InputJSON), &req); err != nil {
			return services.Wrap(services.ErrInput, "planner", "execute", "InvalidRequest: malformed request", err)
		}
	}

	start, end, reason, err := p.resolveWindow(ctx, m.ID, duration, req)
	if err != nil {
		return err
	}

	plan := &media.Plan{
		MediaID: m.ID,
		Mode:    "heuristic",
		Status:  media.PlanValidated,
		EDL: []media.Segment{{
			Start:  start,
			End:    end,
			Kind:   media.SegmentKeep,
			Reason: reason,
		}},
	}
	target := end - start
	plan, vErr := Validate(plan, ValidateOptions{
		Duration:         duration,
		TargetSeconds:    target,
		ToleranceSeconds: target * p.cfg.Planner.CoverageTolerancePct / 100,
	})
	if vErr != nil {
		return vErr
	}

	stored, err := p.store.CreatePlan(ctx, plan)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"plan_id": stored.ID})
	job.ResultJSON = string(payload)
	logger.Info("heuristic plan created",
		logging.String("plan_id", stored.ID),
		logging.Float64("total_keep", stored.TotalKeep()))
	return nil
}

func (p *HeuristicPlanner) resolveWindow(ctx context.Context, mediaID string, duration float64, req HeuristicRequest) (start, end float64, reason string, err error) {
	if req.End > req.Start {
		start, end = req.Start, req.End
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		if end <= start {
			return 0, 0, "", services.Wrap(services.ErrInput, "planner", "execute", "InvalidRequest: window outside source timeline", nil)
		}
		return start, end, "caller-selected window", nil
	}

	candidates, err := p.store.ListClipCandidates(ctx, mediaID)
	if err != nil {
		return 0, 0, "", err
	}
	idx := 0
	if req.CandidateIndex != nil {
		idx = *req.CandidateIndex
	}
	if idx < 0 || idx >= len(candidates) {
		return 0, 0, "", services.Wrap(services.ErrInput, "planner", "execute", "InvalidRequest: no such clip candidate", nil)
	}
	cand := candidates[idx]
	reason = "heuristic clip candidate"
	if cand.HookText != "" {
		reason = "heuristic clip candidate: " + cand.HookText
	}
	return cand.Start, cand.End, reason, nil
}

// HealthCheck reports heuristic planner readiness.
func (p *HeuristicPlanner) HealthCheck(ctx context.Context) stage.Health {
	const name = "heuristic-plan"
	if p.cfg == nil || p.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	return stage.Healthy(name)
}
