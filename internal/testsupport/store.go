package testsupport

import (
	"context"
	"testing"

	"storycut/internal/config"
	"storycut/internal/media"
	"storycut/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMedia registers a media row for tests.
func NewMedia(t testing.TB, store *registry.Store, sourceURI string) *media.Media {
	t.Helper()

	m, err := store.CreateMedia(context.Background(), sourceURI, "test media", "")
	if err != nil {
		t.Fatalf("store.CreateMedia: %v", err)
	}
	return m
}

// NewReadyMedia registers a media row and promotes it to Ready with the
// supplied technical metadata.
func NewReadyMedia(t testing.TB, store *registry.Store, sourceURI string, tech media.TechMetadata) *media.Media {
	t.Helper()

	m := NewMedia(t, store, sourceURI)
	ctx := context.Background()
	if err := store.UpdateMediaStatus(ctx, m.ID, media.MediaRegistered, media.MediaProbing); err != nil {
		t.Fatalf("to probing: %v", err)
	}
	if err := store.SetMediaTech(ctx, m.ID, media.MediaProbing, media.MediaReady, &tech); err != nil {
		t.Fatalf("to ready: %v", err)
	}
	ready, err := store.GetMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("reload media: %v", err)
	}
	return ready
}

// QueueJob enqueues a job of the given kind for tests.
func QueueJob(t testing.TB, store *registry.Store, mediaID string, kind media.JobKind, inputJSON string) *media.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), mediaID, kind, inputJSON, 1)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
