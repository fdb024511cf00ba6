package planner

import (
	"fmt"
	"strings"
	"testing"

	"storycut/internal/media"
)

func manyFrames(n int) []media.Frame {
	out := make([]media.Frame, n)
	for i := range out {
		out[i] = media.Frame{T: float64(i), Description: fmt.Sprintf("frame %d", i)}
	}
	return out
}

func manyScenes(n int) []media.Scene {
	out := make([]media.Scene, n)
	for i := range out {
		out[i] = media.Scene{Index: i, Start: float64(i * 10), End: float64((i + 1) * 10)}
	}
	return out
}

func manySegments(n int) *media.Transcript {
	t := &media.Transcript{MediaID: "m-1"}
	for i := 0; i < n; i++ {
		words := "a few words"
		if i%7 == 0 {
			words = "a much denser stretch of speech with many more words in it"
		}
		t.Segments = append(t.Segments, media.TranscriptSegment{
			Start: float64(i * 4),
			End:   float64(i*4 + 4),
			Text:  words,
		})
	}
	return t
}

func TestCompressHonorsCaps(t *testing.T) {
	got := Compress(1200, manyFrames(300), manyScenes(80), manySegments(250), nil, Caps{})
	if len(got.Frames) != 50 {
		t.Fatalf("frames = %d", len(got.Frames))
	}
	if len(got.Scenes) != 20 {
		t.Fatalf("scenes = %d", len(got.Scenes))
	}
	if len(got.Segments) != 100 {
		t.Fatalf("segments = %d", len(got.Segments))
	}
}

func TestCompressKeepsFirstAndLast(t *testing.T) {
	scenes := manyScenes(80)
	transcript := manySegments(250)
	got := Compress(1200, nil, scenes, transcript, nil, Caps{})

	if got.Scenes[0].Index != 0 || got.Scenes[len(got.Scenes)-1].Index != 79 {
		t.Fatalf("scene edges missing: first %d last %d", got.Scenes[0].Index, got.Scenes[len(got.Scenes)-1].Index)
	}
	if got.Segments[0].Start != transcript.Segments[0].Start {
		t.Fatal("first transcript segment dropped")
	}
	last := transcript.Segments[len(transcript.Segments)-1]
	if got.Segments[len(got.Segments)-1].Start != last.Start {
		t.Fatal("last transcript segment dropped")
	}
}

func TestCompressKeepsKeyMomentFrames(t *testing.T) {
	frames := manyFrames(300)
	got := Compress(1200, frames, nil, nil, []float64{123.2}, Caps{})

	found := false
	for _, f := range got.Frames {
		if f.T == 123 {
			found = true
		}
	}
	if !found {
		t.Fatal("frame near key moment hint was dropped")
	}
}

func TestCompressSmallInputsPassThrough(t *testing.T) {
	frames := manyFrames(3)
	got := Compress(30, frames, manyScenes(2), manySegments(4), nil, Caps{})
	if len(got.Frames) != 3 || len(got.Scenes) != 2 || len(got.Segments) != 4 {
		t.Fatalf("compressed = %d/%d/%d", len(got.Frames), len(got.Scenes), len(got.Segments))
	}
	if !strings.Contains(got.Summary, "3 of 3 frames") {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestCompressIsDeterministic(t *testing.T) {
	a := Compress(1200, manyFrames(300), manyScenes(80), manySegments(250), []float64{100}, Caps{})
	b := Compress(1200, manyFrames(300), manyScenes(80), manySegments(250), []float64{100}, Caps{})
	if a.Summary != b.Summary || len(a.Frames) != len(b.Frames) {
		t.Fatal("compression not deterministic")
	}
	for i := range a.Frames {
		if a.Frames[i].T != b.Frames[i].T {
			t.Fatalf("frame %d differs", i)
		}
	}
}

func TestPromptIsByteStable(t *testing.T) {
	input := PromptInput{
		Duration:     120,
		TolerancePct: 10,
		Brief: media.StoryBrief{
			StoryPrompt:      "cut this down to the key demo",
			Tone:             "energetic",
			DesiredLengthPct: 0.25,
			ArcDescriptors:   []string{"hook", "demo", "cta"},
		},
		Data: Compress(120, manyFrames(10), manyScenes(3), manySegments(6), nil, Caps{}),
	}

	sys1, sys2 := BuildSystemPrompt(input), BuildSystemPrompt(input)
	usr1, usr2 := BuildUserPrompt(input), BuildUserPrompt(input)
	if sys1 != sys2 || usr1 != usr2 {
		t.Fatal("prompt not deterministic")
	}
	if !strings.Contains(sys1, `"story_arc"`) || !strings.Contains(sys1, "no prose") {
		t.Fatalf("system prompt missing contract: %q", sys1)
	}
	// Target 30 s with 10% tolerance.
	if !strings.Contains(sys1, "30.000 seconds, within a tolerance of 3.000") {
		t.Fatalf("coverage window missing: %q", sys1)
	}
	if !strings.Contains(usr1, "Desired length: 25.0%") {
		t.Fatalf("user prompt missing desired length: %q", usr1)
	}
	if !strings.Contains(usr1, "Story arc: hook, demo, cta") {
		t.Fatalf("user prompt missing arc descriptors: %q", usr1)
	}
}
