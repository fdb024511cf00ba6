package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services"
	"storycut/internal/testsupport"
)

func TestHeuristicPlanFromTopCandidate(t *testing.T) {
	env := testsupport.NewEnv(t)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264",
	})
	ctx := context.Background()
	if err := env.Store.ReplaceClipCandidates(ctx, m.ID, []media.ClipCandidate{
		{MediaID: m.ID, Start: 20, End: 50, Score: 80, HookText: "the secret is"},
		{MediaID: m.ID, Start: 60, End: 80, Score: 55},
	}); err != nil {
		t.Fatal(err)
	}

	p := NewHeuristicPlanner(env.Config, env.Store, logging.NewNop())
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanHeuristic, "")
	if err := p.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
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
	if plan.Status != media.PlanValidated || plan.Mode != "heuristic" {
		t.Fatalf("plan = %+v", plan)
	}
	keeps := plan.KeepSegments()
	if len(keeps) != 1 || keeps[0].Start != 20 || keeps[0].End != 50 {
		t.Fatalf("keeps = %+v", keeps)
	}
	if !strings.Contains(keeps[0].Reason, "the secret is") {
		t.Fatalf("reason = %q", keeps[0].Reason)
	}
}

func TestHeuristicPlanFromFreeWindow(t *testing.T) {
	env := testsupport.NewEnv(t)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264",
	})

	p := NewHeuristicPlanner(env.Config, env.Store, logging.NewNop())
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanHeuristic, `{"start":5,"end":25}`)
	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("execute: %v", err)
	}

	plans, err := env.Store.ListPlansByMedia(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 1 {
		t.Fatalf("plans = %d", len(plans))
	}
	keeps := plans[0].KeepSegments()
	if len(keeps) != 1 || keeps[0].Start != 5 || keeps[0].End != 25 {
		t.Fatalf("keeps = %+v", keeps)
	}
}

func TestHeuristicPlanEmptySourceIsInputError(t *testing.T) {
	env := testsupport.NewEnv(t)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/empty.mp4", media.TechMetadata{
		Duration: 0, VideoCodec: "h264",
	})

	p := NewHeuristicPlanner(env.Config, env.Store, logging.NewNop())
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanHeuristic, "")
	err := p.Execute(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "EmptySource") {
		t.Fatalf("err = %v", err)
	}
	if services.Classify(err) != services.ClassInput {
		t.Fatalf("class = %v", services.Classify(err))
	}
}

func TestHeuristicPlanWithoutCandidatesIsInputError(t *testing.T) {
	env := testsupport.NewEnv(t)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, VideoCodec: "h264",
	})

	p := NewHeuristicPlanner(env.Config, env.Store, logging.NewNop())
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobPlanHeuristic, "")
	err := p.Execute(context.Background(), job)
	if err == nil || services.Classify(err) != services.ClassInput {
		t.Fatalf("err = %v", err)
	}
}
