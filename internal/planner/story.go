package planner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/services/llm"
	"storycut/internal/stage"
)

// planResponse is the model's raw plan before validation. Unknown fields
// are dropped by the decoder, which is the schema rule.
type planResponse struct {
	StoryArc        *media.StoryArc        `json:"story_arc"`
	KeyMoments      []media.KeyMoment      `json:"key_moments"`
	EDL             []media.Segment        `json:"edl"`
	Transitions     []media.Transition     `json:"transitions"`
	Recommendations []media.Recommendation `json:"recommendations"`
}

// StoryPlanner is the PlanStory job handler: compress, prompt, complete,
// validate, persist.
type StoryPlanner struct {
	cfg    *config.Config
	store  *registry.Store
	llm    *llm.Client
	logger *slog.Logger
}

// NewStoryPlanner constructs the story planning stage.
func NewStoryPlanner(cfg *config.Config, store *registry.Store, client *llm.Client, logger *slog.Logger) *StoryPlanner {
	return &StoryPlanner{
		cfg:    cfg,
		store:  store,
		llm:    client,
		logger: logging.NewComponentLogger(logger, "story-plan"),
	}
}

// Kind identifies the job kind this handler serves.
func (p *StoryPlanner) Kind() media.JobKind { return media.JobPlanStory }

// Requires declares that planning runs only on probed media. Enrichment
// artifacts are consumed opportunistically, not required.
func (p *StoryPlanner) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare validates configuration and the story brief. Plan jobs are not
// idempotent by artifact: every completed job creates a new plan.
func (p *StoryPlanner) Prepare(ctx context.Context, job *media.Job) error {
	if p.cfg == nil || p.store == nil || p.llm == nil {
		return services.Wrap(services.ErrConfiguration, "planner", "prepare", "story planner is not configured", nil)
	}
	if !p.llm.Configured() {
		return services.Wrap(services.ErrConfiguration, "planner", "prepare", "model api key missing", nil)
	}
	_, err := parseBrief(job.InputJSON)
	return err
}

func parseBrief(raw string) (media.StoryBrief, error) {
	var brief media.StoryBrief
	if strings.TrimSpace(raw) == "" {
		return brief, services.Wrap(services.ErrInput, "planner", "parse", "InvalidRequest: empty story brief", nil)
	}
	if err := json.Unmarshal([]byte(raw), &brief); err != nil {
		return brief, services.Wrap(services.ErrInput, "planner", "parse", "InvalidRequest: malformed story brief", err)
	}
	if strings.TrimSpace(brief.StoryPrompt) == "" {
		return brief, services.Wrap(services.ErrInput, "planner", "parse", "InvalidRequest: story_prompt required", nil)
	}
	if brief.DesiredLengthPct <= 0 || brief.DesiredLengthPct > 1 {
		return brief, services.Wrap(services.ErrInput, "planner", "parse", "InvalidRequest: desired_length_pct must be in (0, 1]", nil)
	}
	return brief, nil
}

// Execute runs one planning attempt end to end. A rejected plan is still
// persisted (status rejected) so callers can inspect why.
func (p *StoryPlanner) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, p.logger)
	brief, err := parseBrief(job.InputJSON)
	if err != nil {
		return err
	}
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

	transcript, scenes, frames, err := p.loadSignal(ctx, m.ID)
	if err != nil {
		return err
	}
	if (transcript == nil || len(transcript.Segments) == 0) && len(scenes) == 0 && len(frames) == 0 {
		return services.Wrap(services.ErrContract, "planner", "execute", "InvalidPlan: ReasonInsufficientSignal: no transcript, scenes or frames", nil)
	}

	input := PromptInput{
		Duration:     duration,
		Brief:        brief,
		TolerancePct: p.cfg.Planner.CoverageTolerancePct,
		Data: Compress(duration, frames, scenes, transcript, nil, Caps{
			Frames:   p.cfg.Planner.FrameCap,
			Scenes:   p.cfg.Planner.SceneCap,
			Segments: p.cfg.Planner.SegmentCap,
		}),
	}

	result, err := p.llm.CompleteJSON(ctx, llm.Request{
		SystemPrompt: BuildSystemPrompt(input),
		UserPrompt:   BuildUserPrompt(input),
		Temperature:  p.cfg.Planner.Temperature,
	})
	if result.Usage.TotalTokens > 0 {
		usage := result.Usage
		job.Usage = &usage
	}
	if err != nil {
		return err
	}

	var response planResponse
	if err := llm.DecodeJSON(result.Content, &response); err != nil {
		return services.Wrap(services.ErrContract, "planner", "execute", "InvalidPlan: response is not valid JSON", err)
	}

	plan := &media.Plan{
		MediaID:         m.ID,
		Mode:            "story",
		Status:          media.PlanValidated,
		StoryArc:        response.StoryArc,
		EDL:             response.EDL,
		KeyMoments:      response.KeyMoments,
		Transitions:     response.Transitions,
		Recommendations: response.Recommendations,
	}
	target := brief.DesiredLengthPct * duration
	plan, vErr := Validate(plan, ValidateOptions{
		Duration:         duration,
		TargetSeconds:    target,
		ToleranceSeconds: target * p.cfg.Planner.CoverageTolerancePct / 100,
		StrictCoverage:   brief.StrictCoverage,
	})
	if vErr != nil {
		plan.Status = media.PlanRejected
		if _, createErr := p.store.CreatePlan(ctx, plan); createErr != nil {
			return errors.Join(vErr, createErr)
		}
		return vErr
	}

	stored, err := p.store.CreatePlan(ctx, plan)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{
		"plan_id":  stored.ID,
		"warnings": len(stored.Warnings),
	})
	job.ResultJSON = string(payload)
	logger.Info("story plan validated",
		logging.String("plan_id", stored.ID),
		logging.Float64("total_keep", stored.TotalKeep()),
		logging.Int("warnings", len(stored.Warnings)))
	return nil
}

func (p *StoryPlanner) loadSignal(ctx context.Context, mediaID string) (*media.Transcript, []media.Scene, []media.Frame, error) {
	transcript, err := p.store.GetTranscript(ctx, mediaID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, nil, nil, err
	}
	scenes, err := p.store.ListScenes(ctx, mediaID)
	if err != nil {
		return nil, nil, nil, err
	}
	frames, err := p.store.ListFrames(ctx, mediaID)
	if err != nil {
		return nil, nil, nil, err
	}
	return transcript, scenes, frames, nil
}

// HealthCheck reports story planner readiness.
func (p *StoryPlanner) HealthCheck(ctx context.Context) stage.Health {
	const name = "story-plan"
	if p.cfg == nil || p.store == nil || p.llm == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if !p.llm.Configured() {
		return stage.Unhealthy(name, "model api key missing")
	}
	return stage.Healthy(name)
}
