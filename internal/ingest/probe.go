// Package ingest fills in technical metadata for freshly registered media.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/stage"
)

// Prober is the Probe job handler. It drives media through the
// Registered -> Probing -> Ready|Failed lattice.
type Prober struct {
	cfg    *config.Config
	store  *registry.Store
	probe  *ffmpeg.Service
	logger *slog.Logger
}

// NewProber constructs the probe stage.
func NewProber(cfg *config.Config, store *registry.Store, probe *ffmpeg.Service, logger *slog.Logger) *Prober {
	return &Prober{
		cfg:    cfg,
		store:  store,
		probe:  probe,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Kind identifies the job kind this handler serves.
func (p *Prober) Kind() media.JobKind { return media.JobProbe }

// Prepare short-circuits when the media already carries metadata.
func (p *Prober) Prepare(ctx context.Context, job *media.Job) error {
	if p.cfg == nil || p.store == nil || p.probe == nil {
		return services.Wrap(services.ErrConfiguration, "ingest", "prepare", "probe stage is not configured", nil)
	}
	m, err := p.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Status == media.MediaReady && m.Tech != nil && m.Tech.Duration > 0 {
		return stage.ErrAlreadyDone
	}
	if m.Status == media.MediaDeleted {
		return services.Wrap(services.ErrInput, "ingest", "prepare", "media is deleted", nil)
	}
	return nil
}

// Execute probes the source and publishes metadata with a conditional
// status write. A benign race with another prober completes quietly.
func (p *Prober) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, p.logger)
	m, err := p.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}

	if err := p.store.UpdateMediaStatus(ctx, m.ID, media.MediaRegistered, media.MediaProbing); err != nil && !errors.Is(err, registry.ErrConflict) {
		return err
	}

	timeout := time.Duration(p.cfg.Enrich.ProbeTimeoutSeconds) * time.Second
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tech, err := p.probe.Probe(probeCtx, m.SourceURI)
	if err != nil {
		if failErr := p.store.UpdateMediaStatus(ctx, m.ID, media.MediaProbing, media.MediaFailed); failErr != nil && !errors.Is(failErr, registry.ErrConflict) {
			logger.Warn("failed to mark media failed", logging.Error(failErr))
		}
		return err
	}

	if err := p.store.SetMediaTech(ctx, m.ID, media.MediaProbing, media.MediaReady, &tech); err != nil {
		if errors.Is(err, registry.ErrConflict) {
			logger.Debug("media status changed underneath probe; leaving as-is")
			return nil
		}
		return err
	}

	result, _ := json.Marshal(tech)
	job.ResultJSON = string(result)

	logger.Info("media probed",
		logging.Float64("duration", tech.Duration),
		logging.Int("width", tech.Width),
		logging.Int("height", tech.Height),
		logging.Bool("has_audio", tech.HasAudio),
		logging.String("video_codec", tech.VideoCodec))
	return nil
}

// HealthCheck reports probe stage readiness.
func (p *Prober) HealthCheck(ctx context.Context) stage.Health {
	const name = "ingest"
	if p.cfg == nil || p.store == nil || p.probe == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if err := p.probe.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
