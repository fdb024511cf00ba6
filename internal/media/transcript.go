package media

import "sort"

// Word carries word-level timing inside a transcript segment.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// TranscriptSegment is one contiguous span of recognized speech.
type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// Transcript is the full speech transcript of one media. Segments are
// sorted, non-overlapping and inside [0, duration].
type Transcript struct {
	MediaID  string              `json:"media_id"`
	Language string              `json:"language,omitempty"`
	Segments []TranscriptSegment `json:"segments"`
}

// NormalizeTranscript enforces the transcript invariants in place: segments
// sorted by start, clamped to [0, duration], overlaps trimmed to touch, and
// degenerate spans dropped. Words are clamped to their segment.
func NormalizeTranscript(t *Transcript, duration float64) {
	if t == nil {
		return
	}
	segments := make([]TranscriptSegment, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if seg.Start < 0 {
			seg.Start = 0
		}
		if duration > 0 && seg.End > duration {
			seg.End = duration
		}
		if seg.End <= seg.Start {
			continue
		}
		segments = append(segments, seg)
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].End {
			segments[i].Start = segments[i-1].End
		}
	}
	out := segments[:0]
	for _, seg := range segments {
		if seg.End <= seg.Start {
			continue
		}
		words := seg.Words[:0]
		for _, w := range seg.Words {
			if w.Start < seg.Start {
				w.Start = seg.Start
			}
			if w.End > seg.End {
				w.End = seg.End
			}
			if w.End <= w.Start {
				continue
			}
			words = append(words, w)
		}
		seg.Words = words
		out = append(out, seg)
	}
	t.Segments = out
}

// WordCount returns the total word count, falling back to whitespace
// splitting when word-level timings are absent.
func (t *Transcript) WordCount() int {
	if t == nil {
		return 0
	}
	total := 0
	for _, seg := range t.Segments {
		if len(seg.Words) > 0 {
			total += len(seg.Words)
			continue
		}
		total += countFields(seg.Text)
	}
	return total
}

func countFields(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
