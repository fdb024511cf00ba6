// Package scenes derives the visual structure of a media: cut
// timestamps, described frames and the merged scene index.
package scenes

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
	"storycut/internal/services/ffmpeg"
	"storycut/internal/stage"
)

// Detector is the DetectScenes job handler.
type Detector struct {
	cfg    *config.Config
	store  *registry.Store
	ffmpeg *ffmpeg.Service
	logger *slog.Logger
}

// NewDetector constructs the scene-cut detection stage.
func NewDetector(cfg *config.Config, store *registry.Store, svc *ffmpeg.Service, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		store:  store,
		ffmpeg: svc,
		logger: logging.NewComponentLogger(logger, "scene-detect"),
	}
}

// Kind identifies the job kind this handler serves.
func (d *Detector) Kind() media.JobKind { return media.JobDetectScenes }

// Requires declares that detection runs only on probed media.
func (d *Detector) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare short-circuits when cuts already exist.
func (d *Detector) Prepare(ctx context.Context, job *media.Job) error {
	if d.cfg == nil || d.store == nil || d.ffmpeg == nil {
		return services.Wrap(services.ErrConfiguration, "scenes", "prepare", "detector is not configured", nil)
	}
	if existing, err := d.store.GetSceneCuts(ctx, job.MediaID); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			return err
		}
	} else if existing != nil {
		return stage.ErrAlreadyDone
	}
	return nil
}

// Execute detects cut candidates and persists the normalized list. An
// empty list is valid: the timeline is one scene.
func (d *Detector) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, d.logger)
	m, err := d.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "scenes", "execute", "media has no technical metadata", nil)
	}

	cuts := &media.SceneCuts{MediaID: m.ID}
	if m.Tech.Duration > 0 {
		times, err := d.ffmpeg.DetectScenes(ctx, m.SourceURI, d.cfg.Enrich.SceneThreshold)
		if err != nil {
			return err
		}
		cuts.Cuts = times
	}

	media.NormalizeCuts(cuts, m.Tech.Duration)
	if err := d.store.PutSceneCuts(ctx, cuts); err != nil {
		return err
	}

	result, _ := json.Marshal(map[string]int{"cuts": len(cuts.Cuts)})
	job.ResultJSON = string(result)
	logger.Info("scene cuts detected", logging.Int("cuts", len(cuts.Cuts)))
	return nil
}

// HealthCheck reports detector readiness.
func (d *Detector) HealthCheck(ctx context.Context) stage.Health {
	const name = "scene-detect"
	if d.cfg == nil || d.store == nil || d.ffmpeg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if err := d.ffmpeg.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
