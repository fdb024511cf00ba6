package api

import (
	"testing"

	"storycut/internal/media"
)

func TestFromRenderWithholdsOutputUntilCompleted(t *testing.T) {
	running := &media.Render{
		ID:          "r-1",
		PlanID:      "p-1",
		AspectRatio: "16:9",
		Status:      media.RenderRunning,
		OutputURI:   "/blobs/renders/p-1/16x9.mp4",
	}
	if got := FromRender(running); got.OutputURI != "" {
		t.Fatalf("running render exposed output uri %q", got.OutputURI)
	}

	done := &media.Render{
		ID:              "r-2",
		PlanID:          "p-1",
		AspectRatio:     "16:9",
		Status:          media.RenderCompleted,
		OutputURI:       "/blobs/renders/p-1/16x9.mp4",
		DurationSeconds: 25,
	}
	view := FromRender(done)
	if view.OutputURI == "" || view.DurationSeconds != 25 {
		t.Fatalf("completed render view = %+v", view)
	}
}

func TestFromPlanCarriesAdvisoryOutput(t *testing.T) {
	plan := &media.Plan{
		ID:      "p-1",
		MediaID: "m-1",
		Status:  media.PlanValidated,
		Mode:    "story",
		EDL: []media.Segment{
			{Start: 0, End: 10, Kind: media.SegmentKeep},
			{Start: 10, End: 20, Kind: media.SegmentSkip},
		},
		StoryArc: &media.StoryArc{HookT: 1, ClimaxT: 5, ResolutionT: 9},
		Warnings: []string{"coverage_warning: short"},
	}
	view := FromPlan(plan)
	if view.TotalKeep != 10 {
		t.Fatalf("total keep = %v", view.TotalKeep)
	}
	if view.StoryArc == nil || len(view.Warnings) != 1 {
		t.Fatalf("view = %+v", view)
	}
	if view.Status != "validated" {
		t.Fatalf("status = %q", view.Status)
	}
}
