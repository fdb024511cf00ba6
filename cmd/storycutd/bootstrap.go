package main

import (
	"log/slog"

	"storycut/internal/audioanalysis"
	"storycut/internal/blob"
	"storycut/internal/clips"
	"storycut/internal/config"
	"storycut/internal/ingest"
	"storycut/internal/planner"
	"storycut/internal/registry"
	"storycut/internal/render"
	"storycut/internal/scenes"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/services/llm"
	"storycut/internal/services/whisper"
	"storycut/internal/stage"
	"storycut/internal/transcription"
)

type handlerRegistrar interface {
	Register(handlers ...stage.Handler)
}

// registerHandlers wires every job kind to its stage handler.
func registerHandlers(reg handlerRegistrar, cfg *config.Config, store *registry.Store, blobs *blob.Store, logger *slog.Logger) {
	if reg == nil || cfg == nil {
		return
	}

	av := ffmpeg.NewService(cfg)
	model := llm.NewClient(cfg)
	speech := whisper.NewService(cfg)
	extractor := audioanalysis.NewExtractor(blobs, av)

	reg.Register(
		ingest.NewProber(cfg, store, av, logger),
		transcription.NewTranscriber(cfg, store, blobs, extractor, speech, logger),
		audioanalysis.NewSilenceDetector(cfg, store, extractor, logger),
		scenes.NewDetector(cfg, store, av, logger),
		scenes.NewDescriber(cfg, store, blobs, av, model, logger),
		scenes.NewIndexer(cfg, store, logger),
		clips.NewSelector(cfg, store, logger),
		planner.NewHeuristicPlanner(cfg, store, logger),
		planner.NewStoryPlanner(cfg, store, model, logger),
		render.NewRenderer(cfg, store, blobs, av, logger),
	)
}
