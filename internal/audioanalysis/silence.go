package audioanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/stage"
)

// SilenceDetector is the DetectSilence job handler.
type SilenceDetector struct {
	cfg       *config.Config
	store     *registry.Store
	extractor *Extractor
	logger    *slog.Logger
}

// NewSilenceDetector constructs the silence detection stage.
func NewSilenceDetector(cfg *config.Config, store *registry.Store, extractor *Extractor, logger *slog.Logger) *SilenceDetector {
	return &SilenceDetector{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "silence"),
	}
}

// Kind identifies the job kind this handler serves.
func (d *SilenceDetector) Kind() media.JobKind { return media.JobDetectSilence }

// Requires declares that silence detection runs only on probed media.
func (d *SilenceDetector) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare short-circuits when a silence map already exists.
func (d *SilenceDetector) Prepare(ctx context.Context, job *media.Job) error {
	if d.cfg == nil || d.store == nil || d.extractor == nil {
		return services.Wrap(services.ErrConfiguration, "silence", "prepare", "stage is not configured", nil)
	}
	if existing, err := d.store.GetSilenceMap(ctx, job.MediaID); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			return err
		}
	} else if existing != nil {
		return stage.ErrAlreadyDone
	}
	return nil
}

// Execute detects silence and persists the normalized map atomically. A
// source without audio yields a single interval covering the whole
// timeline; a zero-duration source yields an empty map.
func (d *SilenceDetector) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, d.logger)
	m, err := d.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "silence", "execute", "media has no technical metadata", nil)
	}
	duration := m.Tech.Duration
	minSilence := d.cfg.Enrich.MinSilenceSeconds

	silence := &media.SilenceMap{MediaID: m.ID}
	switch {
	case duration <= 0:
		// Empty source: nothing to detect.
	case !m.Tech.HasAudio:
		silence.Intervals = []media.SilenceInterval{{Start: 0, End: duration}}
	default:
		audioPath, err := d.extractor.EnsureAudio(ctx, m, job.ID)
		if err != nil {
			return err
		}
		intervals, err := d.ffmpegIntervals(ctx, audioPath, minSilence, duration)
		if err != nil {
			return err
		}
		silence.Intervals = intervals
	}

	media.NormalizeSilence(silence, duration, minSilence)
	if err := d.store.PutSilenceMap(ctx, silence); err != nil {
		return err
	}

	result, _ := json.Marshal(map[string]int{"intervals": len(silence.Intervals)})
	job.ResultJSON = string(result)
	logger.Info("silence detected", logging.Int("intervals", len(silence.Intervals)))
	return nil
}

func (d *SilenceDetector) ffmpegIntervals(ctx context.Context, audioPath string, minSilence, duration float64) ([]media.SilenceInterval, error) {
	intervals, err := d.extractor.ffmpeg.DetectSilence(ctx, audioPath, minSilence)
	if err != nil {
		return nil, err
	}
	for i := range intervals {
		// An unterminated detection runs to the end of the stream.
		if intervals[i].End < 0 {
			intervals[i].End = duration
		}
	}
	return intervals, nil
}

// HealthCheck reports silence stage readiness.
func (d *SilenceDetector) HealthCheck(ctx context.Context) stage.Health {
	const name = "silence"
	if d.cfg == nil || d.store == nil || d.extractor == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if err := d.extractor.ffmpeg.Available(); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg unavailable: %v", err))
	}
	return stage.Healthy(name)
}
