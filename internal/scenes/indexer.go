package scenes

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
	"storycut/internal/stage"
)

// descriptionsPerScene bounds how many frame descriptions are folded
// into one scene label.
const descriptionsPerScene = 3

// Indexer is the IndexScenes job handler. It is a pure merge of scene
// cuts and described frames; it touches no external tool.
type Indexer struct {
	cfg    *config.Config
	store  *registry.Store
	logger *slog.Logger
}

// NewIndexer constructs the scene indexing stage.
func NewIndexer(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Indexer {
	return &Indexer{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "scene-index"),
	}
}

// Kind identifies the job kind this handler serves.
func (i *Indexer) Kind() media.JobKind { return media.JobIndexScenes }

// Requires declares the producer kinds that must complete first.
func (i *Indexer) Requires() []media.JobKind {
	return []media.JobKind{media.JobDetectScenes, media.JobDescribeFrames}
}

// Prepare short-circuits when scenes already exist.
func (i *Indexer) Prepare(ctx context.Context, job *media.Job) error {
	if i.cfg == nil || i.store == nil {
		return services.Wrap(services.ErrConfiguration, "scenes", "prepare", "indexer is not configured", nil)
	}
	existing, err := i.store.ListScenes(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return stage.ErrAlreadyDone
	}
	return nil
}

// Execute merges cuts and frames into the scene index.
func (i *Indexer) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, i.logger)
	m, err := i.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "scenes", "execute", "media has no technical metadata", nil)
	}

	cuts, err := i.store.GetSceneCuts(ctx, m.ID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	frames, err := i.store.ListFrames(ctx, m.ID)
	if err != nil {
		return err
	}

	var cutTimes []float64
	if cuts != nil {
		cutTimes = cuts.Cuts
	}
	built := BuildScenes(m.ID, m.Tech.Duration, cutTimes, frames)
	if err := i.store.ReplaceScenes(ctx, m.ID, built); err != nil {
		return err
	}

	result, _ := json.Marshal(map[string]int{"scenes": len(built)})
	job.ResultJSON = string(result)
	logger.Info("scenes indexed", logging.Int("scenes", len(built)))
	return nil
}

// HealthCheck reports indexer readiness.
func (i *Indexer) HealthCheck(ctx context.Context) stage.Health {
	const name = "scene-index"
	if i.cfg == nil || i.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	return stage.Healthy(name)
}

// BuildScenes partitions [0, duration) at the cut timestamps and tags
// each interval with descriptions of the frames that fall inside it.
// Adjacent intervals touch exactly; the whole timeline is covered. An
// empty cut list yields one scene spanning the timeline.
func BuildScenes(mediaID string, duration float64, cuts []float64, frames []media.Frame) []media.Scene {
	if duration <= 0 {
		return nil
	}
	boundaries := make([]float64, 0, len(cuts)+2)
	boundaries = append(boundaries, 0)
	for _, c := range cuts {
		if c > 0 && c < duration {
			boundaries = append(boundaries, c)
		}
	}
	boundaries = append(boundaries, duration)

	scenes := make([]media.Scene, 0, len(boundaries)-1)
	for idx := 0; idx < len(boundaries)-1; idx++ {
		start, end := boundaries[idx], boundaries[idx+1]
		scenes = append(scenes, media.Scene{
			MediaID:     mediaID,
			Index:       idx,
			Start:       start,
			End:         end,
			Description: describeInterval(frames, start, end),
		})
	}
	return scenes
}

func describeInterval(frames []media.Frame, start, end float64) string {
	var parts []string
	for _, f := range frames {
		if f.T < start || f.T >= end {
			continue
		}
		if desc := strings.TrimSpace(f.Description); desc != "" {
			parts = append(parts, desc)
		}
		if len(parts) == descriptionsPerScene {
			break
		}
	}
	return strings.Join(parts, "; ")
}
