package media

// ClipFeatures records the scored signals behind a clip candidate.
type ClipFeatures struct {
	SpeechDensity float64 `json:"speech_density"`
	SilenceRatio  float64 `json:"silence_ratio"`
	KeywordHits   int     `json:"keyword_hits"`
	SceneAligned  bool    `json:"scene_aligned"`
}

// ClipCandidate is a scored window the heuristic selector proposes.
type ClipCandidate struct {
	MediaID  string       `json:"media_id"`
	Start    float64      `json:"start"`
	End      float64      `json:"end"`
	Score    float64      `json:"score"`
	Features ClipFeatures `json:"features"`
	HookText string       `json:"hook_text,omitempty"`
}

// Duration returns the candidate window length in seconds.
func (c ClipCandidate) Duration() float64 { return c.End - c.Start }

// Overlaps reports whether two candidate windows share any time.
func (c ClipCandidate) Overlaps(other ClipCandidate) bool {
	return c.Start < other.End && other.Start < c.End
}
