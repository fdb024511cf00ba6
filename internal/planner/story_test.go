package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services"
	"storycut/internal/services/llm"
	"storycut/internal/stage"
	"storycut/internal/testsupport"
)

func modelHandler(t *testing.T, planContent any, calls *int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		content, err := json.Marshal(planContent)
		if err != nil {
			t.Fatal(err)
		}
		body := map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"content": string(content)},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 900, "completion_tokens": 120},
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
}

func newStoryEnv(t *testing.T, handler http.HandlerFunc) (*StoryPlanner, *testsupport.Env) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	env := testsupport.NewEnv(t, func(c *config.Config) {
		c.LLM.BaseURL = server.URL
	})
	client := llm.NewClient(env.Config)
	return NewStoryPlanner(env.Config, env.Store, client, logging.NewNop()), env
}

func storyBrief() string {
	return `{"story_prompt":"keep the strongest demo moments","desired_length_pct":0.25,"tone":"energetic"}`
}

func TestStoryPlannerPersistsValidatedPlan(t *testing.T) {
	var calls int
	planContent := map[string]any{
		"story_arc": map[string]float64{"hook_t": 12, "climax_t": 25, "resolution_t": 38},
		"edl": []map[string]any{
			{"start": 10, "end": 40, "kind": "keep", "reason": "main demo"},
		},
		"recommendations": []map[string]any{
			{"message": "tighten the intro", "priority": "medium"},
		},
	}
	p, env := newStoryEnv(t, modelHandler(t, planContent, &calls))

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264", HasAudio: true,
	})
	ctx := context.Background()
	if err := env.Store.PutTranscript(ctx, &media.Transcript{
		MediaID:  m.ID,
		Segments: []media.TranscriptSegment{{Start: 0, End: 120, Text: "the full talk"}},
	}); err != nil {
		t.Fatal(err)
	}

	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanStory, storyBrief())
	if err := p.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := p.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("model calls = %d", calls)
	}
	if job.Usage == nil || job.Usage.TotalTokens != 1020 {
		t.Fatalf("usage = %+v", job.Usage)
	}

	var result struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal([]byte(job.ResultJSON), &result); err != nil || result.PlanID == "" {
		t.Fatalf("result = %q", job.ResultJSON)
	}
	plan, err := env.Store.GetPlan(ctx, result.PlanID)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Status != media.PlanValidated || plan.Mode != "story" {
		t.Fatalf("plan = %+v", plan)
	}
	// Keep of 30 s hits the 30 s target exactly, so no coverage warning.
	if len(plan.Warnings) != 0 {
		t.Fatalf("warnings = %v", plan.Warnings)
	}
	if plan.TotalKeep() != 30 {
		t.Fatalf("total keep = %v", plan.TotalKeep())
	}
}

func TestStoryPlannerRejectsUnrenderablePlan(t *testing.T) {
	planContent := map[string]any{"edl": []any{}}
	p, env := newStoryEnv(t, modelHandler(t, planContent, nil))

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264",
	})
	ctx := context.Background()
	if err := env.Store.PutTranscript(ctx, &media.Transcript{
		MediaID:  m.ID,
		Segments: []media.TranscriptSegment{{Start: 0, End: 120, Text: "the full talk"}},
	}); err != nil {
		t.Fatal(err)
	}

	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanStory, storyBrief())
	err := p.Execute(ctx, job)
	if err == nil || !strings.Contains(err.Error(), "UnrenderablePlan") {
		t.Fatalf("err = %v", err)
	}
	if services.Classify(err) != services.ClassContract {
		t.Fatalf("class = %v", services.Classify(err))
	}

	// The rejected plan is still stored for inspection.
	plans, err := env.Store.ListPlansByMedia(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 1 || plans[0].Status != media.PlanRejected {
		t.Fatalf("plans = %+v", plans)
	}
}

func TestStoryPlannerFailsWithoutSignal(t *testing.T) {
	p, env := newStoryEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("model should not be called without signal")
	})
	m := testsupport.NewReadyMedia(t, env.Store, "/src/silent.mp4", media.TechMetadata{
		Duration: 30, FPS: 30, VideoCodec: "h264",
	})
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanStory, storyBrief())

	err := p.Execute(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "ReasonInsufficientSignal") {
		t.Fatalf("err = %v", err)
	}
	if services.Classify(err) != services.ClassContract {
		t.Fatalf("class = %v", services.Classify(err))
	}
}

func TestStoryPlannerValidatesBrief(t *testing.T) {
	p, env := newStoryEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264",
	})

	cases := []string{
		"",
		`{"desired_length_pct":0.25}`,
		`{"story_prompt":"x","desired_length_pct":1.5}`,
	}
	for _, input := range cases {
		job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanStory, input)
		err := p.Prepare(context.Background(), job)
		if err == nil || stage.AlreadyDone(err) {
			t.Fatalf("input %q: err = %v", input, err)
		}
		if services.Classify(err) != services.ClassInput {
			t.Fatalf("input %q: class = %v", input, services.Classify(err))
		}
	}
}
