// Package planner turns enrichment artifacts into validated edit plans,
// either heuristically or through an external story model.
package planner

import (
	"fmt"
	"math"
	"sort"

	"storycut/internal/media"
)

// keyMomentTolerance is how close a frame must sit to a key moment hint
// to be retained regardless of the uniform subsample.
const keyMomentTolerance = 0.25

// Caps bounds how much of each artifact survives compression.
type Caps struct {
	Frames   int
	Scenes   int
	Segments int
}

func (c Caps) withDefaults() Caps {
	if c.Frames <= 0 {
		c.Frames = 50
	}
	if c.Scenes <= 0 {
		c.Scenes = 20
	}
	if c.Segments <= 0 {
		c.Segments = 100
	}
	return c
}

// Compressed is the bounded projection of the enrichment artifacts that
// fits a prompt budget.
type Compressed struct {
	Frames   []media.Frame
	Scenes   []media.Scene
	Segments []media.TranscriptSegment
	Summary  string
}

// Compress projects the artifacts down to the caps. The hints are
// timestamps of key moments whose nearby frames must survive.
func Compress(duration float64, frames []media.Frame, scenes []media.Scene, transcript *media.Transcript, hints []float64, caps Caps) Compressed {
	caps = caps.withDefaults()

	var segments []media.TranscriptSegment
	if transcript != nil {
		segments = transcript.Segments
	}

	out := Compressed{
		Frames:   sampleFrames(frames, hints, caps.Frames),
		Scenes:   sampleScenes(scenes, caps.Scenes),
		Segments: sampleSegments(segments, caps.Segments),
	}
	out.Summary = fmt.Sprintf(
		"source duration %.1fs; included %d of %d frames, %d of %d scenes, %d of %d transcript segments",
		duration,
		len(out.Frames), len(frames),
		len(out.Scenes), len(scenes),
		len(out.Segments), len(segments),
	)
	return out
}

// sampleFrames keeps a uniform subsample plus every frame within the key
// moment tolerance of a hint. When a uniform slot is taken, the nearest
// free neighbour with the longer description wins.
func sampleFrames(frames []media.Frame, hints []float64, limit int) []media.Frame {
	n := len(frames)
	if n <= limit {
		return frames
	}
	selected := make([]bool, n)
	count := 0
	for _, hint := range hints {
		for i, f := range frames {
			if count == limit {
				break
			}
			if !selected[i] && math.Abs(f.T-hint) <= keyMomentTolerance {
				selected[i] = true
				count++
			}
		}
	}
	remaining := limit - count
	for k := 0; k < remaining; k++ {
		idx := k * (n - 1) / max(remaining-1, 1)
		pick := nearestFree(frames, selected, idx)
		if pick >= 0 {
			selected[pick] = true
		}
	}
	out := make([]media.Frame, 0, limit)
	for i, keep := range selected {
		if keep {
			out = append(out, frames[i])
		}
	}
	return out
}

func nearestFree(frames []media.Frame, selected []bool, idx int) int {
	if !selected[idx] {
		return idx
	}
	for d := 1; d < len(frames); d++ {
		lo, hi := idx-d, idx+d
		loOK := lo >= 0 && !selected[lo]
		hiOK := hi < len(frames) && !selected[hi]
		switch {
		case loOK && hiOK:
			if len(frames[hi].Description) > len(frames[lo].Description) {
				return hi
			}
			return lo
		case loOK:
			return lo
		case hiOK:
			return hi
		}
	}
	return -1
}

// sampleScenes keeps the first and last scene plus evenly spaced ones in
// between.
func sampleScenes(scenes []media.Scene, limit int) []media.Scene {
	n := len(scenes)
	if n <= limit {
		return scenes
	}
	out := make([]media.Scene, 0, limit)
	for k := 0; k < limit; k++ {
		idx := k * (n - 1) / (limit - 1)
		if len(out) > 0 && out[len(out)-1].Index == scenes[idx].Index {
			continue
		}
		out = append(out, scenes[idx])
	}
	return out
}

// sampleSegments prefers the densest speech but always retains the first
// and last segment to preserve framing.
func sampleSegments(segments []media.TranscriptSegment, limit int) []media.TranscriptSegment {
	n := len(segments)
	if n <= limit {
		return segments
	}
	type ranked struct {
		idx     int
		density float64
	}
	middle := make([]ranked, 0, n-2)
	for i := 1; i < n-1; i++ {
		middle = append(middle, ranked{idx: i, density: wordDensity(segments[i])})
	}
	sort.SliceStable(middle, func(a, b int) bool {
		return middle[a].density > middle[b].density
	})

	chosen := map[int]struct{}{0: {}, n - 1: {}}
	for _, r := range middle {
		if len(chosen) == limit {
			break
		}
		chosen[r.idx] = struct{}{}
	}
	out := make([]media.TranscriptSegment, 0, limit)
	for i := 0; i < n; i++ {
		if _, ok := chosen[i]; ok {
			out = append(out, segments[i])
		}
	}
	return out
}

func wordDensity(seg media.TranscriptSegment) float64 {
	dur := seg.End - seg.Start
	if dur <= 0 {
		return 0
	}
	words := len(seg.Words)
	if words == 0 {
		t := media.Transcript{Segments: []media.TranscriptSegment{seg}}
		words = t.WordCount()
	}
	return float64(words) / dur
}
