package transcription

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storycut/internal/audioanalysis"
	"storycut/internal/blob"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/services/whisper"
	"storycut/internal/stage"
	"storycut/internal/testsupport"
)

func newTestTranscriber(t *testing.T, whisperJSON string) (*Transcriber, *testsupport.Env) {
	t.Helper()
	env := testsupport.NewEnv(t)
	blobs := blob.New(env.Config.Paths.BlobRoot)

	ffsvc := ffmpeg.NewService(env.Config).WithCommandRunner(
		func(_ context.Context, _ string, args ...string) (string, string, error) {
			if len(args) > 0 {
				if dest := args[len(args)-1]; dest != "-" {
					if err := os.WriteFile(dest, []byte("wav"), 0o644); err != nil {
						t.Fatal(err)
					}
				}
			}
			return "", "", nil
		})

	wsvc := whisper.NewService(env.Config).WithCommandRunner(
		func(_ context.Context, _ string, args ...string) error {
			// The tool writes <audio-base>.json into --output_dir.
			audio := args[0]
			outDir := ""
			for i, a := range args {
				if a == "--output_dir" && i+1 < len(args) {
					outDir = args[i+1]
				}
			}
			base := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
			return os.WriteFile(filepath.Join(outDir, base+".json"), []byte(whisperJSON), 0o644)
		})

	extractor := audioanalysis.NewExtractor(blobs, ffsvc)
	return NewTranscriber(env.Config, env.Store, blobs, extractor, wsvc, logging.NewNop()), env
}

func TestTranscribePersistsNormalizedTranscript(t *testing.T) {
	// Second segment overlaps the first and overruns the duration.
	payload := `{"segments": [
	  {"text": "First.", "start": 0.5, "end": 5.0},
	  {"text": "Second.", "start": 4.0, "end": 12.0}
	]}`
	tr, env := newTestTranscriber(t, payload)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/talk.mp4", media.TechMetadata{
		Duration: 10, FPS: 30, HasAudio: true, VideoCodec: "h264", AudioCodec: "aac",
	})
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobTranscribe, "")

	if err := tr.Execute(context.Background(), job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err := env.Store.GetTranscript(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segments = %+v", got.Segments)
	}
	first, second := got.Segments[0], got.Segments[1]
	if second.Start < first.End {
		t.Fatalf("segments overlap: %+v then %+v", first, second)
	}
	if second.End > 10 {
		t.Fatalf("segment end %v exceeds duration", second.End)
	}

	if err := tr.Prepare(context.Background(), job); !stage.AlreadyDone(err) {
		t.Fatalf("prepare after completion = %v, want ErrAlreadyDone", err)
	}
}

func TestTranscribeSilentSourceCompletesEmpty(t *testing.T) {
	tr, env := newTestTranscriber(t, `{"segments": []}`)
	m := testsupport.NewReadyMedia(t, env.Store, "/src/silent.mp4", media.TechMetadata{
		Duration: 30, FPS: 30, HasAudio: false, VideoCodec: "h264",
	})
	job := testsupport.QueueJob(t, env.Store, m.ID, media.JobTranscribe, "")

	if err := tr.Execute(context.Background(), job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err := env.Store.GetTranscript(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Segments) != 0 {
		t.Fatalf("segments = %+v, want empty", got.Segments)
	}
}
