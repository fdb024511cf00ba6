package whisper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"storycut/internal/config"
)

func TestTranscribeParsesToolOutput(t *testing.T) {
	workDir := t.TempDir()
	audio := filepath.Join(workDir, "audio.wav")

	cfg := config.Default()
	cfg.Whisper.Language = "en-US"
	svc := NewService(&cfg)

	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		out := `{"segments": [
		  {"text": " Hello there. ", "start": 0.5, "end": 2.0,
		   "words": [{"word": "Hello", "start": 0.5, "end": 1.0}, {"word": "there.", "start": 1.1, "end": 2.0}]},
		  {"text": "Second line", "start": 2.5, "end": 4.0}
		]}`
		return os.WriteFile(filepath.Join(workDir, "audio.json"), []byte(out), 0o644)
	})

	transcript, err := svc.Transcribe(context.Background(), audio, workDir)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if gotName != cfg.Whisper.Binary {
		t.Fatalf("ran %q, want %q", gotName, cfg.Whisper.Binary)
	}
	if gotArgs[0] != audio {
		t.Fatalf("first arg = %q, want audio path", gotArgs[0])
	}
	assertFlag(t, gotArgs, "--model", cfg.Whisper.Model)
	assertFlag(t, gotArgs, "--output_format", "json")
	// Region subtag is stripped down to the base language.
	assertFlag(t, gotArgs, "--language", "en")

	if len(transcript.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(transcript.Segments))
	}
	first := transcript.Segments[0]
	if first.Text != "Hello there." || first.Start != 0.5 || first.End != 2.0 {
		t.Fatalf("first segment = %+v", first)
	}
	if len(first.Words) != 2 || first.Words[1].Word != "there." {
		t.Fatalf("words = %+v", first.Words)
	}
	if transcript.Language != "en" {
		t.Fatalf("language = %q", transcript.Language)
	}
}

func TestTranscribeMissingOutputIsContractError(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg).WithCommandRunner(
		func(context.Context, string, ...string) error { return nil })

	_, err := svc.Transcribe(context.Background(), "/tmp/audio.wav", t.TempDir())
	if err == nil {
		t.Fatal("expected error when tool writes no JSON")
	}
}

func TestLanguageTagFallsBackToRaw(t *testing.T) {
	svc := &Service{language: "No Such Language"}
	if got := svc.languageTag(); got != "no such language" {
		t.Fatalf("languageTag = %q", got)
	}
	svc = &Service{language: ""}
	if got := svc.languageTag(); got != "" {
		t.Fatalf("empty language produced %q", got)
	}
}

func assertFlag(t *testing.T, args []string, flag, want string) {
	t.Helper()
	for i, a := range args {
		if a == flag {
			if i+1 >= len(args) || args[i+1] != want {
				t.Fatalf("%s = %q, want %q", flag, args[i+1], want)
			}
			return
		}
	}
	t.Fatalf("flag %s missing from %v", flag, args)
}
