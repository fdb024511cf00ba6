package render

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"storycut/internal/blob"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/stage"
	"storycut/internal/testsupport"
)

func keep(start, end float64) media.Segment {
	return media.Segment{Start: start, End: end, Kind: media.SegmentKeep}
}

func TestNormalizeKeepsSortsMergesAndDrops(t *testing.T) {
	keeps := NormalizeKeeps([]media.Segment{
		keep(30, 45),
		keep(10, 20),
		keep(20.005, 22), // within join tolerance of the previous keep
		keep(50, 50.01),  // shorter than one frame at 30 fps
	}, 30)
	if len(keeps) != 2 {
		t.Fatalf("keeps = %+v", keeps)
	}
	if keeps[0].Start != 10 || keeps[0].End != 22 {
		t.Fatalf("merged keep = %+v", keeps[0])
	}
	if keeps[1].Start != 30 || keeps[1].End != 45 {
		t.Fatalf("second keep = %+v", keeps[1])
	}
	if got := TotalDuration(keeps); math.Abs(got-27) > 1e-9 {
		t.Fatalf("total = %v", got)
	}
}

func TestOutputTimeMapsThroughKeeps(t *testing.T) {
	keeps := []media.Segment{keep(10, 20), keep(30, 45)}
	if got, ok := OutputTime(keeps, 12); !ok || got != 2 {
		t.Fatalf("OutputTime(12) = %v, %v", got, ok)
	}
	if got, ok := OutputTime(keeps, 35); !ok || got != 15 {
		t.Fatalf("OutputTime(35) = %v, %v", got, ok)
	}
	if _, ok := OutputTime(keeps, 25); ok {
		t.Fatal("timestamp in a gap should not map")
	}
}

func TestOutputCaptionsShiftAndClip(t *testing.T) {
	keeps := []media.Segment{keep(10, 20), keep(30, 45)}
	transcript := &media.Transcript{Segments: []media.TranscriptSegment{
		{Start: 8, End: 12, Text: "straddles the first keep"},
		{Start: 22, End: 28, Text: "entirely skipped"},
		{Start: 31, End: 33, Text: "inside the second keep"},
	}}
	captions := OutputCaptions(keeps, transcript)
	if len(captions) != 2 {
		t.Fatalf("captions = %+v", captions)
	}
	// Straddling cue clipped to [10,12] and shifted to output zero.
	if captions[0].Start != 0 || captions[0].End != 2 {
		t.Fatalf("caption 0 = %+v", captions[0])
	}
	// Second keep starts at output 10.
	if captions[1].Start != 11 || captions[1].End != 13 {
		t.Fatalf("caption 1 = %+v", captions[1])
	}

	srt := FormatSRT(captions)
	if !strings.Contains(srt, "1\n00:00:00,000 --> 00:00:02,000\nstraddles the first keep\n\n") {
		t.Fatalf("srt = %q", srt)
	}
	if !strings.Contains(srt, "2\n00:00:11,000 --> 00:00:13,000\n") {
		t.Fatalf("srt = %q", srt)
	}
}

func TestSRTTimestampFormat(t *testing.T) {
	if got := srtTimestamp(3723.456); got != "01:02:03,456" {
		t.Fatalf("timestamp = %q", got)
	}
	if got := srtTimestamp(-1); got != "00:00:00,000" {
		t.Fatalf("negative timestamp = %q", got)
	}
}

// fakeTools wires a Renderer against a scripted command runner. Every
// ffmpeg invocation writes its destination file; ffprobe reports the
// configured duration.
type fakeTools struct {
	mu            sync.Mutex
	calls         [][]string
	probeDuration float64
	failFilter    string
}

func (f *fakeTools) run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if strings.Contains(name, "ffprobe") {
		return fmt.Sprintf("%.3f", f.probeDuration), "", nil
	}
	if f.failFilter != "" {
		for _, arg := range args {
			if strings.Contains(arg, f.failFilter) {
				return "", "", fmt.Errorf("encoder blew up")
			}
		}
	}
	if len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], []byte("media"), 0o644); err != nil {
			return "", "", err
		}
	}
	return "", "", nil
}

func newRenderEnv(t *testing.T, tools *fakeTools) (*Renderer, *testsupport.Env, *blob.Store) {
	t.Helper()
	env := testsupport.NewEnv(t)
	blobs := blob.New(env.Config.Paths.BlobRoot)
	svc := ffmpeg.NewService(env.Config).WithCommandRunner(tools.run)
	return NewRenderer(env.Config, env.Store, blobs, svc, logging.NewNop()), env, blobs
}

func validatedPlan(t *testing.T, env *testsupport.Env, mediaID string, keeps ...media.Segment) *media.Plan {
	t.Helper()
	plan, err := env.Store.CreatePlan(context.Background(), &media.Plan{
		MediaID: mediaID,
		Status:  media.PlanValidated,
		Mode:    "story",
		EDL:     keeps,
	})
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func applyInput(planID string, ratios ...string) string {
	payload, _ := json.Marshal(ApplyInput{PlanID: planID, AspectRatios: ratios})
	return string(payload)
}

func TestApplyPlanRendersEveryRatio(t *testing.T) {
	tools := &fakeTools{probeDuration: 25}
	r, env, blobs := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 120, FPS: 30, HasAudio: true, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(10, 20), keep(30, 45))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9", "9:16"))

	if err := r.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := r.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, ratio := range []media.AspectRatio{"16:9", "9:16"} {
		rec, err := env.Store.FindRender(ctx, plan.ID, ratio, media.RenderCompleted)
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil {
			t.Fatalf("no completed render for %s", ratio)
		}
		if rec.OutputURI != blobs.RenderPath(plan.ID, ratio.Slug()) {
			t.Fatalf("output uri = %q", rec.OutputURI)
		}
		if !blobs.Exists(rec.OutputURI) {
			t.Fatalf("output file missing for %s", ratio)
		}
		if rec.DurationSeconds != 25 {
			t.Fatalf("duration = %v", rec.DurationSeconds)
		}
	}

	got, err := env.Store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.PlanRendered {
		t.Fatalf("plan status = %s", got.Status)
	}
	if !strings.Contains(job.ResultJSON, `"rendered":2`) {
		t.Fatalf("result = %q", job.ResultJSON)
	}
	// Temp prefix is gone after the job finishes.
	if _, err := os.Stat(blobs.JobTmpDir(job.ID)); !os.IsNotExist(err) {
		t.Fatalf("tmp prefix still present: %v", err)
	}

	if err := r.Prepare(ctx, job); !stage.AlreadyDone(err) {
		t.Fatalf("prepare after completion = %v", err)
	}
}

func TestApplyPlanSkipsCompletedRatios(t *testing.T) {
	tools := &fakeTools{probeDuration: 10}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(5, 15))

	first := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9"))
	if err := r.Execute(ctx, first); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	callsAfterFirst := len(tools.calls)

	second := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9", "1:1"))
	if err := r.Execute(ctx, second); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !strings.Contains(second.ResultJSON, `"skipped":1`) {
		t.Fatalf("result = %q", second.ResultJSON)
	}
	// The completed 16:9 output was not re-encoded.
	for _, call := range tools.calls[callsAfterFirst:] {
		for _, arg := range call {
			if strings.Contains(arg, "scale=1920:1080") {
				t.Fatalf("16:9 re-rendered: %v", call)
			}
		}
	}
}

func TestApplyPlanPartialFailureKeepsOtherRatios(t *testing.T) {
	// 9:16 conforms to a 1080x1920 canvas; fail that encode only.
	tools := &fakeTools{probeDuration: 10, failFilter: "scale=1080:1920"}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(5, 15))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9", "9:16"))

	err := r.Execute(ctx, job)
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if !strings.Contains(err.Error(), "9:16") {
		t.Fatalf("error does not name the failed ratio: %v", err)
	}

	done, err2 := env.Store.FindRender(ctx, plan.ID, "16:9", media.RenderCompleted)
	if err2 != nil || done == nil {
		t.Fatalf("16:9 should complete despite the 9:16 failure: %v %v", done, err2)
	}
	failed, err2 := env.Store.FindRender(ctx, plan.ID, "9:16", media.RenderFailed)
	if err2 != nil || failed == nil {
		t.Fatalf("9:16 should be failed: %v %v", failed, err2)
	}
	if failed.Error == nil || failed.Error.Code != "EncodeError" {
		t.Fatalf("failure code = %+v", failed.Error)
	}

	got, err2 := env.Store.GetPlan(ctx, plan.ID)
	if err2 != nil {
		t.Fatal(err2)
	}
	if got.Status != media.PlanRendering {
		t.Fatalf("plan status = %s, want rendering until all ratios complete", got.Status)
	}
}

func TestApplyPlanCoverageGuardFailsRender(t *testing.T) {
	// Plan keeps 10 seconds but the output probes at 7.
	tools := &fakeTools{probeDuration: 7}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(5, 15))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9"))

	if err := r.Execute(ctx, job); err == nil {
		t.Fatal("expected coverage failure")
	}
	failed, err := env.Store.FindRender(ctx, plan.ID, "16:9", media.RenderFailed)
	if err != nil || failed == nil {
		t.Fatalf("render not failed: %v %v", failed, err)
	}
	if failed.Error == nil || failed.Error.Code != "CorruptIntermediate" {
		t.Fatalf("failure code = %+v", failed.Error)
	}
}

func TestApplyPlanValidatesInput(t *testing.T) {
	tools := &fakeTools{probeDuration: 10}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(5, 15))

	cases := map[string]string{
		"empty input":  "",
		"missing plan": applyInput("no-such-plan", "16:9"),
		"bad ratio":    applyInput(plan.ID, "wide"),
		"no ratios":    `{"plan_id":"` + plan.ID + `","aspect_ratios":[]}`,
	}
	for name, input := range cases {
		job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, input)
		err := r.Prepare(ctx, job)
		if err == nil || services.Classify(err) != services.ClassInput {
			t.Errorf("%s: prepare = %v, want input error", name, err)
		}
	}
}

func TestApplyPlanRejectsUnrenderablePlanStates(t *testing.T) {
	tools := &fakeTools{probeDuration: 10}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	rejected, err := env.Store.CreatePlan(ctx, &media.Plan{
		MediaID: m.ID, Status: media.PlanRejected, Mode: "story", EDL: []media.Segment{keep(5, 15)},
	})
	if err != nil {
		t.Fatal(err)
	}
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(rejected.ID, "16:9"))
	if err := r.Prepare(ctx, job); err == nil || services.Classify(err) != services.ClassInput {
		t.Fatalf("prepare on rejected plan = %v", err)
	}

	// A validated plan whose keeps all normalize away is a contract error.
	empty := validatedPlan(t, env, m.ID, media.Segment{Start: 5, End: 15, Kind: media.SegmentSkip})
	job = testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(empty.ID, "16:9"))
	err = r.Execute(ctx, job)
	if err == nil || services.Classify(err) != services.ClassContract {
		t.Fatalf("execute on keepless plan = %v", err)
	}
	if !strings.Contains(err.Error(), "UnrenderablePlan") {
		t.Fatalf("error = %v", err)
	}
}

func TestApplyPlanHonorsCancelFlag(t *testing.T) {
	tools := &fakeTools{probeDuration: 10}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, VideoCodec: "h264",
	})
	plan := validatedPlan(t, env, m.ID, keep(5, 15))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, applyInput(plan.ID, "16:9"))

	if err := env.Store.ClaimJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.RequestCancel(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(ctx, job); !stage.Cancelled(err) {
		t.Fatalf("execute = %v, want ErrCancelled", err)
	}
	rec, err := env.Store.FindRender(ctx, plan.ID, "16:9", media.RenderCancelled)
	if err != nil || rec == nil {
		t.Fatalf("render not cancelled: %v %v", rec, err)
	}
}

func TestApplyPlanBurnsCaptionsFromTranscript(t *testing.T) {
	tools := &fakeTools{probeDuration: 10}
	r, env, _ := newRenderEnv(t, tools)
	ctx := context.Background()

	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 60, FPS: 30, HasAudio: true, VideoCodec: "h264",
	})
	if err := env.Store.PutTranscript(ctx, &media.Transcript{
		MediaID:  m.ID,
		Language: "en",
		Segments: []media.TranscriptSegment{{Start: 6, End: 9, Text: "hello there"}},
	}); err != nil {
		t.Fatal(err)
	}
	plan := validatedPlan(t, env, m.ID, keep(5, 15))
	payload, _ := json.Marshal(ApplyInput{
		PlanID: plan.ID, AspectRatios: []string{"16:9"}, Captions: true, NormaliseAudio: true,
	})
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobApplyPlan, string(payload))

	if err := r.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var sawSubtitles, sawLoudnorm bool
	for _, call := range tools.calls {
		for _, arg := range call {
			if strings.Contains(arg, "subtitles=") {
				sawSubtitles = true
			}
			if strings.Contains(arg, "loudnorm") {
				sawLoudnorm = true
			}
		}
	}
	if !sawSubtitles {
		t.Fatal("finalize never burned subtitles")
	}
	if !sawLoudnorm {
		t.Fatal("finalize never normalized loudness")
	}
}
