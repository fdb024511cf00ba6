package media

import "sort"

// SilenceInterval is a half-open [Start, End) span of silence.
type SilenceInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the interval length in seconds.
func (s SilenceInterval) Duration() float64 { return s.End - s.Start }

// SilenceMap holds the detected silence intervals of one media, sorted and
// pairwise disjoint, each at least the configured minimum length.
type SilenceMap struct {
	MediaID   string            `json:"media_id"`
	Intervals []SilenceInterval `json:"intervals"`
}

// NormalizeSilence sorts intervals, merges overlaps, clamps to
// [0, duration] and drops intervals shorter than minSilence.
func NormalizeSilence(m *SilenceMap, duration, minSilence float64) {
	if m == nil {
		return
	}
	intervals := make([]SilenceInterval, 0, len(m.Intervals))
	for _, iv := range m.Intervals {
		if iv.Start < 0 {
			iv.Start = 0
		}
		if duration > 0 && iv.End > duration {
			iv.End = duration
		}
		if iv.End <= iv.Start {
			continue
		}
		intervals = append(intervals, iv)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	merged := intervals[:0]
	for _, iv := range intervals {
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	out := make([]SilenceInterval, 0, len(merged))
	for _, iv := range merged {
		if iv.Duration() >= minSilence {
			out = append(out, iv)
		}
	}
	m.Intervals = out
}

// SilenceOverlap returns the total silent time inside [start, end).
func (m *SilenceMap) SilenceOverlap(start, end float64) float64 {
	if m == nil || end <= start {
		return 0
	}
	total := 0.0
	for _, iv := range m.Intervals {
		lo := max(start, iv.Start)
		hi := min(end, iv.End)
		if hi > lo {
			total += hi - lo
		}
	}
	return total
}

// SceneCuts holds detected cut timestamps, strictly increasing and strictly
// inside (0, duration).
type SceneCuts struct {
	MediaID string    `json:"media_id"`
	Cuts    []float64 `json:"cuts"`
}

// NormalizeCuts sorts, deduplicates and drops cuts outside (0, duration).
func NormalizeCuts(c *SceneCuts, duration float64) {
	if c == nil {
		return
	}
	sort.Float64s(c.Cuts)
	out := c.Cuts[:0]
	prev := 0.0
	for _, cut := range c.Cuts {
		if cut <= 0 || (duration > 0 && cut >= duration) {
			continue
		}
		if len(out) > 0 && cut == prev {
			continue
		}
		out = append(out, cut)
		prev = cut
	}
	c.Cuts = out
}

// Frame is one sampled frame with its model description.
type Frame struct {
	MediaID     string  `json:"media_id"`
	T           float64 `json:"t"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Scene is a derived [Start, End) interval of the timeline tagged with an
// aggregate description of the frames inside it.
type Scene struct {
	MediaID     string  `json:"media_id"`
	Index       int     `json:"index"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Description string  `json:"description,omitempty"`
}
