package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/stage"
	"storycut/internal/testsupport"
)

const probeJSON = `{
  "format": {"duration": "120.5", "bit_rate": "4000000"},
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac"}
  ]
}`

func newTestProber(t *testing.T, stdout string) (*Prober, *testsupport.Env) {
	t.Helper()
	env := testsupport.NewEnv(t)
	svc := ffmpeg.NewService(env.Config).WithCommandRunner(
		func(context.Context, string, ...string) (string, string, error) {
			return stdout, "", nil
		})
	return NewProber(env.Config, env.Store, svc, logging.NewNop()), env
}

func sourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbePublishesTechAndMarksReady(t *testing.T) {
	prober, env := newTestProber(t, probeJSON)
	m := testsupport.NewMedia(t, env.Store, sourceFile(t))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobProbe, "")

	if err := prober.Execute(context.Background(), job); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := env.Store.GetMedia(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.MediaReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if got.Tech == nil {
		t.Fatal("tech metadata not stored")
	}
	if got.Tech.Duration != 120.5 || got.Tech.Width != 1920 || got.Tech.Height != 1080 {
		t.Fatalf("tech = %+v", got.Tech)
	}
	if !got.Tech.HasAudio || got.Tech.VideoCodec != "h264" || got.Tech.AudioCodec != "aac" {
		t.Fatalf("tech = %+v", got.Tech)
	}
	if got.Tech.FPS < 29.9 || got.Tech.FPS > 30.0 {
		t.Fatalf("fps = %v, want ~29.97", got.Tech.FPS)
	}
	if job.ResultJSON == "" {
		t.Fatal("job result not recorded")
	}
}

func TestProbeMissingSourceMarksFailed(t *testing.T) {
	prober, env := newTestProber(t, probeJSON)
	m := testsupport.NewMedia(t, env.Store, filepath.Join(t.TempDir(), "absent.mp4"))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobProbe, "")

	if err := prober.Execute(context.Background(), job); err == nil {
		t.Fatal("expected error for missing source")
	}
	got, err := env.Store.GetMedia(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.MediaFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestProbeNoVideoStreamIsInputError(t *testing.T) {
	prober, env := newTestProber(t, `{"format": {"duration": "10"}, "streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`)
	m := testsupport.NewMedia(t, env.Store, sourceFile(t))
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobProbe, "")

	if err := prober.Execute(context.Background(), job); err == nil {
		t.Fatal("expected error for audio-only source")
	}
	got, err := env.Store.GetMedia(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.MediaFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestProbePrepareShortCircuitsWhenAlreadyProbed(t *testing.T) {
	prober, env := newTestProber(t, probeJSON)
	m := testsupport.NewReadyMedia(t, env.Store, sourceFile(t), media.TechMetadata{
		Duration: 60, FPS: 30, Width: 1280, Height: 720, VideoCodec: "h264",
	})
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobProbe, "")

	if err := prober.Prepare(context.Background(), job); !stage.AlreadyDone(err) {
		t.Fatalf("prepare = %v, want ErrAlreadyDone", err)
	}
}
