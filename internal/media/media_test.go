package media

import (
	"math"
	"testing"
)

func TestParseJobKind(t *testing.T) {
	if kind, ok := ParseJobKind(" Plan_Story "); !ok || kind != JobPlanStory {
		t.Fatalf("ParseJobKind = %q, %v", kind, ok)
	}
	if _, ok := ParseJobKind("rip_disc"); ok {
		t.Fatal("unknown kind accepted")
	}
}

func TestJobTransitions(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{JobQueued, JobRunning},
		{JobQueued, JobCancelled},
		{JobRunning, JobCompleted},
		{JobRunning, JobFailed},
		{JobRunning, JobCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to JobStatus }{
		{JobQueued, JobCompleted},
		{JobCompleted, JobRunning},
		{JobFailed, JobQueued},
		{JobCancelled, JobRunning},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestNormalizeTranscript(t *testing.T) {
	tr := &Transcript{Segments: []TranscriptSegment{
		{Start: 5, End: 12, Text: "second"},
		{Start: -1, End: 6, Text: "first"},
		{Start: 20, End: 20, Text: "empty"},
		{Start: 28, End: 40, Text: "tail"},
	}}
	NormalizeTranscript(tr, 30)

	if len(tr.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(tr.Segments))
	}
	if tr.Segments[0].Start != 0 {
		t.Errorf("start not clamped: %v", tr.Segments[0].Start)
	}
	if tr.Segments[1].Start != tr.Segments[0].End {
		t.Errorf("overlap not trimmed: %v vs %v", tr.Segments[1].Start, tr.Segments[0].End)
	}
	if tr.Segments[2].End != 30 {
		t.Errorf("end not clamped: %v", tr.Segments[2].End)
	}
	for i := 1; i < len(tr.Segments); i++ {
		if tr.Segments[i].Start < tr.Segments[i-1].End {
			t.Errorf("segments overlap at %d", i)
		}
	}
}

func TestNormalizeSilenceMergesAndFilters(t *testing.T) {
	m := &SilenceMap{Intervals: []SilenceInterval{
		{Start: 10, End: 11},
		{Start: 10.5, End: 12},
		{Start: 20, End: 20.3},
		{Start: -2, End: 1},
	}}
	NormalizeSilence(m, 30, 0.6)

	want := []SilenceInterval{{Start: 0, End: 1}, {Start: 10, End: 12}}
	if len(m.Intervals) != len(want) {
		t.Fatalf("got %v", m.Intervals)
	}
	for i, iv := range want {
		if m.Intervals[i] != iv {
			t.Errorf("interval %d = %v, want %v", i, m.Intervals[i], iv)
		}
	}
}

func TestSilenceOverlap(t *testing.T) {
	m := &SilenceMap{Intervals: []SilenceInterval{{Start: 5, End: 10}, {Start: 20, End: 25}}}
	if got := m.SilenceOverlap(0, 30); math.Abs(got-10) > 1e-9 {
		t.Fatalf("overlap = %v, want 10", got)
	}
	if got := m.SilenceOverlap(8, 22); math.Abs(got-4) > 1e-9 {
		t.Fatalf("overlap = %v, want 4", got)
	}
}

func TestNormalizeCuts(t *testing.T) {
	c := &SceneCuts{Cuts: []float64{15, 0, 5, 5, 30, 31}}
	NormalizeCuts(c, 30)
	want := []float64{5, 15}
	if len(c.Cuts) != len(want) {
		t.Fatalf("got %v", c.Cuts)
	}
	for i := range want {
		if c.Cuts[i] != want[i] {
			t.Errorf("cut %d = %v, want %v", i, c.Cuts[i], want[i])
		}
	}
}

func TestAspectRatioParse(t *testing.T) {
	w, h, err := AspectRatio("9:16").Parse()
	if err != nil || w != 9 || h != 16 {
		t.Fatalf("Parse = %d, %d, %v", w, h, err)
	}
	if _, _, err := AspectRatio("square").Parse(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := AspectRatio("16:9").Slug(); got != "16x9" {
		t.Fatalf("Slug = %q", got)
	}
}

func TestPlanTotalKeep(t *testing.T) {
	plan := &Plan{EDL: []Segment{
		{Start: 0, End: 10, Kind: SegmentKeep},
		{Start: 10, End: 15, Kind: SegmentSkip},
		{Start: 20, End: 25, Kind: SegmentKeep},
	}}
	if got := plan.TotalKeep(); math.Abs(got-15) > 1e-9 {
		t.Fatalf("TotalKeep = %v, want 15", got)
	}
	if n := len(plan.KeepSegments()); n != 2 {
		t.Fatalf("KeepSegments = %d, want 2", n)
	}
}
