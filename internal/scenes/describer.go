package scenes

import (
	"context"
	"encoding/json"
	"log/slog"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/services/llm"
	"storycut/internal/stage"
)

// Describer is the DescribeFrames job handler. It samples frames at a
// fixed interval, batches them to the vision model, and persists the
// descriptions in one write.
type Describer struct {
	cfg    *config.Config
	store  *registry.Store
	blobs  *blob.Store
	ffmpeg *ffmpeg.Service
	llm    *llm.Client
	logger *slog.Logger
}

// NewDescriber constructs the frame description stage.
func NewDescriber(cfg *config.Config, store *registry.Store, blobs *blob.Store, svc *ffmpeg.Service, client *llm.Client, logger *slog.Logger) *Describer {
	return &Describer{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		ffmpeg: svc,
		llm:    client,
		logger: logging.NewComponentLogger(logger, "frame-describe"),
	}
}

// Kind identifies the job kind this handler serves.
func (d *Describer) Kind() media.JobKind { return media.JobDescribeFrames }

// Requires declares that description runs only on probed media.
func (d *Describer) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare short-circuits when frames were already described.
func (d *Describer) Prepare(ctx context.Context, job *media.Job) error {
	if d.cfg == nil || d.store == nil || d.blobs == nil || d.ffmpeg == nil || d.llm == nil {
		return services.Wrap(services.ErrConfiguration, "describe", "prepare", "describer is not configured", nil)
	}
	if !d.llm.Configured() {
		return services.Wrap(services.ErrConfiguration, "describe", "prepare", "vision model api key missing", nil)
	}
	existing, err := d.store.ListFrames(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return stage.ErrAlreadyDone
	}
	return nil
}

// SampleTimestamps returns the deterministic frame sampling grid for a
// duration: one frame per interval, starting at half the interval so the
// first sample is never the (often black) very first frame.
func SampleTimestamps(duration, interval float64) []float64 {
	if duration <= 0 || interval <= 0 {
		return nil
	}
	var times []float64
	for t := interval / 2; t < duration; t += interval {
		times = append(times, t)
	}
	return times
}

// Execute samples, extracts and describes frames batch by batch. The
// cancel flag is polled between batches; descriptions are persisted only
// after every batch succeeded.
func (d *Describer) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, d.logger)
	m, err := d.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "describe", "execute", "media has no technical metadata", nil)
	}

	times := SampleTimestamps(m.Tech.Duration, d.cfg.Enrich.FrameSampleSeconds)
	var described []media.Frame
	var usage media.TokenUsage

	batchSize := d.cfg.Enrich.FrameBatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	for start := 0; start < len(times); start += batchSize {
		if cancelled, err := d.store.CancelRequested(ctx, job.ID); err != nil {
			return err
		} else if cancelled {
			return stage.ErrCancelled
		}

		end := min(start+batchSize, len(times))
		batch := times[start:end]

		paths := make([]string, 0, len(batch))
		for _, t := range batch {
			path := d.blobs.FramePath(m.ID, t)
			if !d.blobs.Exists(path) {
				if err := d.blobs.EnsureParent(path); err != nil {
					return err
				}
				if err := d.ffmpeg.ExtractFrame(ctx, m.SourceURI, t, path); err != nil {
					return err
				}
			}
			paths = append(paths, path)
		}

		frames, batchUsage, err := d.llm.DescribeFrames(ctx, paths, batch)
		if err != nil {
			return err
		}
		usage.PromptTokens += batchUsage.PromptTokens
		usage.CompletionTokens += batchUsage.CompletionTokens
		usage.TotalTokens += batchUsage.TotalTokens
		for i := range frames {
			frames[i].MediaID = m.ID
		}
		described = append(described, frames...)
	}

	if err := d.store.ReplaceFrames(ctx, m.ID, described); err != nil {
		return err
	}
	if usage.TotalTokens > 0 {
		job.Usage = &usage
	}

	result, _ := json.Marshal(map[string]int{"frames": len(described)})
	job.ResultJSON = string(result)
	logger.Info("frames described",
		logging.Int("frames", len(described)),
		logging.Int("tokens", usage.TotalTokens))
	return nil
}

// HealthCheck reports describer readiness.
func (d *Describer) HealthCheck(ctx context.Context) stage.Health {
	const name = "frame-describe"
	if d.cfg == nil || d.store == nil || d.llm == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if !d.llm.Configured() {
		return stage.Unhealthy(name, "vision model api key missing")
	}
	return stage.Healthy(name)
}
