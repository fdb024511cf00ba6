// Package render applies a validated plan to its source media, producing
// one output file per requested aspect ratio.
package render

import (
	"sort"

	"storycut/internal/media"
)

// joinTolerance is the largest gap between adjacent keeps that still
// merges them, avoiding a spurious cut at the join.
const joinTolerance = 0.010

// NormalizeKeeps prepares a plan's keep segments for extraction: sorted,
// near-touching segments merged, and segments shorter than one frame at
// the output rate dropped.
func NormalizeKeeps(keeps []media.Segment, fps float64) []media.Segment {
	sorted := append([]media.Segment(nil), keeps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := make([]media.Segment, 0, len(sorted))
	for _, seg := range sorted {
		if n := len(merged); n > 0 && seg.Start-merged[n-1].End <= joinTolerance {
			if seg.End > merged[n-1].End {
				merged[n-1].End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}

	minLen := 0.0
	if fps > 0 {
		minLen = 1 / fps
	}
	out := merged[:0]
	for _, seg := range merged {
		if seg.Duration() >= minLen && seg.Duration() > 0 {
			out = append(out, seg)
		}
	}
	return out
}

// TotalDuration sums the keep durations in seconds.
func TotalDuration(keeps []media.Segment) float64 {
	total := 0.0
	for _, seg := range keeps {
		total += seg.Duration()
	}
	return total
}

// OutputTime maps a source timestamp inside a keep segment onto the
// concatenated output timeline. The second return is false when the
// timestamp falls outside every keep.
func OutputTime(keeps []media.Segment, t float64) (float64, bool) {
	offset := 0.0
	for _, seg := range keeps {
		if t >= seg.Start && t <= seg.End {
			return offset + (t - seg.Start), true
		}
		offset += seg.Duration()
	}
	return 0, false
}
