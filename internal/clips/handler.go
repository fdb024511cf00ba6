package clips

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/stage"
)

// Selector is the SelectClips job handler.
type Selector struct {
	cfg    *config.Config
	store  *registry.Store
	logger *slog.Logger
}

// NewSelector constructs the clip selection stage.
func NewSelector(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Selector {
	return &Selector{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "clip-select"),
	}
}

// Kind identifies the job kind this handler serves.
func (s *Selector) Kind() media.JobKind { return media.JobSelectClips }

// Requires declares the enrichment artifacts selection consumes.
func (s *Selector) Requires() []media.JobKind {
	return []media.JobKind{media.JobTranscribe, media.JobDetectSilence}
}

// Prepare short-circuits when candidates already exist.
func (s *Selector) Prepare(ctx context.Context, job *media.Job) error {
	if s.cfg == nil || s.store == nil {
		return services.Wrap(services.ErrConfiguration, "clips", "prepare", "selector is not configured", nil)
	}
	existing, err := s.store.ListClipCandidates(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return stage.ErrAlreadyDone
	}
	return nil
}

// Execute scores candidate windows and persists the selection. Missing
// inputs produce an empty candidate list, not a failure.
func (s *Selector) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	m, err := s.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "clips", "execute", "media has no technical metadata", nil)
	}

	transcript, err := s.store.GetTranscript(ctx, m.ID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	silence, err := s.store.GetSilenceMap(ctx, m.ID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	cuts, err := s.store.GetSceneCuts(ctx, m.ID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}

	candidates := Select(m.ID, m.Tech.Duration, transcript, silence, cuts, Options{
		MinSeconds:    s.cfg.Clips.MinSeconds,
		MaxSeconds:    s.cfg.Clips.MaxSeconds,
		MaxCandidates: s.cfg.Clips.MaxCandidates,
		HookKeywords:  s.cfg.Clips.HookKeywords,
	})
	if err := s.store.ReplaceClipCandidates(ctx, m.ID, candidates); err != nil {
		return err
	}

	result, _ := json.Marshal(map[string]int{"candidates": len(candidates)})
	job.ResultJSON = string(result)
	logger.Info("clip candidates selected", logging.Int("candidates", len(candidates)))
	return nil
}

// HealthCheck reports selector readiness.
func (s *Selector) HealthCheck(ctx context.Context) stage.Health {
	const name = "clip-select"
	if s.cfg == nil || s.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	return stage.Healthy(name)
}
