// Package transcription turns the extracted audio artifact into a
// persisted transcript with enforced timeline invariants.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"storycut/internal/audioanalysis"
	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/services/whisper"
	"storycut/internal/stage"
)

// Transcriber is the Transcribe job handler.
type Transcriber struct {
	cfg       *config.Config
	store     *registry.Store
	blobs     *blob.Store
	extractor *audioanalysis.Extractor
	whisper   *whisper.Service
	logger    *slog.Logger
}

// NewTranscriber constructs the transcription stage.
func NewTranscriber(cfg *config.Config, store *registry.Store, blobs *blob.Store, extractor *audioanalysis.Extractor, svc *whisper.Service, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		whisper:   svc,
		logger:    logging.NewComponentLogger(logger, "transcription"),
	}
}

// Kind identifies the job kind this handler serves.
func (t *Transcriber) Kind() media.JobKind { return media.JobTranscribe }

// Requires declares that transcription runs only on probed media.
func (t *Transcriber) Requires() []media.JobKind {
	return []media.JobKind{media.JobProbe}
}

// Prepare short-circuits when a transcript already exists.
func (t *Transcriber) Prepare(ctx context.Context, job *media.Job) error {
	if t.cfg == nil || t.store == nil || t.extractor == nil || t.whisper == nil {
		return services.Wrap(services.ErrConfiguration, "transcription", "prepare", "stage is not configured", nil)
	}
	if existing, err := t.store.GetTranscript(ctx, job.MediaID); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			return err
		}
	} else if existing != nil {
		return stage.ErrAlreadyDone
	}
	return nil
}

// Execute transcribes the media audio. Silent or empty sources complete
// with an empty segment list; the full transcript is written in one
// registry call so readers never observe a partial one.
func (t *Transcriber) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	m, err := t.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "transcription", "execute", "media has no technical metadata", nil)
	}
	duration := m.Tech.Duration

	transcript := &media.Transcript{MediaID: m.ID}
	if duration > 0 && m.Tech.HasAudio {
		audioPath, err := t.extractor.EnsureAudio(ctx, m, job.ID)
		if err != nil {
			return err
		}

		// Transcription time scales with source length; the soft deadline
		// is a factor of duration.
		runCtx := ctx
		if factor := t.cfg.Enrich.TranscribeTimeoutFactor; factor > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(factor*duration)*time.Second)
			defer cancel()
		}

		result, err := t.whisper.Transcribe(runCtx, audioPath, t.blobs.JobTmpDir(job.ID))
		if err != nil {
			return err
		}
		transcript.Language = result.Language
		transcript.Segments = result.Segments
	}

	media.NormalizeTranscript(transcript, duration)
	if err := t.store.PutTranscript(ctx, transcript); err != nil {
		return err
	}

	result, _ := json.Marshal(map[string]any{
		"segments": len(transcript.Segments),
		"words":    transcript.WordCount(),
		"language": transcript.Language,
	})
	job.ResultJSON = string(result)
	logger.Info("transcription complete",
		logging.Int("segments", len(transcript.Segments)),
		logging.Int("words", transcript.WordCount()))
	return nil
}

// HealthCheck reports transcription stage readiness.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcription"
	if t.cfg == nil || t.store == nil || t.whisper == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if err := t.whisper.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
