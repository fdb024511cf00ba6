// Package clips scores and selects candidate highlight windows from
// the enrichment artifacts of a media.
package clips

import (
	"math"
	"sort"
	"strings"

	"storycut/internal/media"
)

// sceneAlignTolerance is how close a window boundary must sit to a
// detected cut to count as scene aligned.
const sceneAlignTolerance = 0.25

// Scoring weights. The raw score is clamped to [0, 100].
const (
	speechWeight     = 40.0
	speechSaturation = 3.0
	silencePenalty   = 30.0
	keywordWeight    = 8.0
	keywordCap       = 3
	sceneAlignBonus  = 8.0
	durationBonus    = 10.0
	durationPenalty  = 15.0
	idealMinSeconds  = 20.0
	idealMaxSeconds  = 40.0
	earlyBonus       = 5.0
	earlyFraction    = 0.25
)

// Options bounds the selection.
type Options struct {
	MinSeconds    float64
	MaxSeconds    float64
	MaxCandidates int
	HookKeywords  []string
}

func (o Options) withDefaults() Options {
	if o.MinSeconds <= 0 {
		o.MinSeconds = 15
	}
	if o.MaxSeconds <= o.MinSeconds {
		o.MaxSeconds = 60
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 5
	}
	return o
}

// Select produces up to MaxCandidates non-overlapping scored windows.
// Without a transcript there is nothing to anchor windows on, so the
// result is empty rather than an error.
func Select(mediaID string, duration float64, transcript *media.Transcript, silence *media.SilenceMap, cuts *media.SceneCuts, opts Options) []media.ClipCandidate {
	opts = opts.withDefaults()
	if transcript == nil || len(transcript.Segments) == 0 || duration <= 0 {
		return []media.ClipCandidate{}
	}

	scored := make([]media.ClipCandidate, 0, len(transcript.Segments))
	for _, w := range windows(transcript.Segments, duration, opts) {
		cand := score(mediaID, w.start, w.end, duration, transcript, silence, cuts, opts)
		scored = append(scored, cand)
	}

	// Greedy by score under pairwise non-overlap, ties to earlier start.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Start < scored[j].Start
	})
	selected := make([]media.ClipCandidate, 0, opts.MaxCandidates)
	for _, cand := range scored {
		if len(selected) == opts.MaxCandidates {
			break
		}
		overlaps := false
		for _, kept := range selected {
			if cand.Overlaps(kept) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			selected = append(selected, cand)
		}
	}
	return selected
}

type window struct {
	start, end float64
}

// windows anchors one candidate window at each segment start and grows
// it through following segments up to the maximum length.
func windows(segments []media.TranscriptSegment, duration float64, opts Options) []window {
	var out []window
	seen := make(map[window]struct{})
	for i, seg := range segments {
		start := seg.Start
		end := seg.End
		for j := i + 1; j < len(segments); j++ {
			if segments[j].End-start > opts.MaxSeconds {
				break
			}
			end = segments[j].End
		}
		if end-start < opts.MinSeconds {
			end = start + opts.MinSeconds
		}
		if end > duration {
			end = duration
		}
		if end-start < opts.MinSeconds {
			continue
		}
		w := window{start: start, end: end}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func score(mediaID string, start, end, duration float64, transcript *media.Transcript, silence *media.SilenceMap, cuts *media.SceneCuts, opts Options) media.ClipCandidate {
	dur := end - start
	features := media.ClipFeatures{}
	hook := ""

	words := 0
	for _, seg := range transcript.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		words += segmentWordsInside(seg, start, end)
		if hits := keywordHits(seg.Text, opts.HookKeywords); hits > 0 {
			features.KeywordHits += hits
			if hook == "" {
				hook = strings.TrimSpace(seg.Text)
			}
		}
	}
	features.SpeechDensity = float64(words) / dur
	features.SilenceRatio = silence.SilenceOverlap(start, end) / dur
	features.SceneAligned = alignedWithCut(start, cuts) || alignedWithCut(end, cuts)

	value := speechWeight * math.Min(features.SpeechDensity/speechSaturation, 1)
	value -= silencePenalty * features.SilenceRatio
	value += keywordWeight * float64(min(features.KeywordHits, keywordCap))
	if features.SceneAligned {
		value += sceneAlignBonus
	}
	// Openings tend to hold attention better than deep cuts.
	if duration > 0 && start/duration <= earlyFraction {
		value += earlyBonus
	}
	switch {
	case dur >= idealMinSeconds && dur <= idealMaxSeconds:
		value += durationBonus
	case dur < opts.MinSeconds || dur > opts.MaxSeconds:
		value -= durationPenalty
	}
	value = math.Max(0, math.Min(100, value))

	return media.ClipCandidate{
		MediaID:  mediaID,
		Start:    start,
		End:      end,
		Score:    math.Round(value*100) / 100,
		Features: features,
		HookText: hook,
	}
}

// segmentWordsInside counts the words of a segment falling inside the
// window, using word timings when present and falling back to counting
// the whole segment when its midpoint lies inside.
func segmentWordsInside(seg media.TranscriptSegment, start, end float64) int {
	if len(seg.Words) > 0 {
		count := 0
		for _, w := range seg.Words {
			if w.Start >= start && w.Start < end {
				count++
			}
		}
		return count
	}
	mid := (seg.Start + seg.End) / 2
	if mid >= start && mid < end {
		return len(strings.Fields(seg.Text))
	}
	return 0
}

func keywordHits(text string, keywords []string) int {
	lowered := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowered, kw) {
			hits++
		}
	}
	return hits
}

func alignedWithCut(t float64, cuts *media.SceneCuts) bool {
	if cuts == nil {
		return false
	}
	for _, c := range cuts.Cuts {
		if math.Abs(c-t) <= sceneAlignTolerance {
			return true
		}
	}
	return false
}
