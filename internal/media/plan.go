package media

import (
	"strings"
	"time"
)

// PlanStatus represents the lifecycle of an edit plan.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanValidated PlanStatus = "validated"
	PlanRejected  PlanStatus = "rejected"
	PlanRendering PlanStatus = "rendering"
	PlanRendered  PlanStatus = "rendered"
)

var planStatusSet = map[PlanStatus]struct{}{
	PlanDraft:     {},
	PlanValidated: {},
	PlanRejected:  {},
	PlanRendering: {},
	PlanRendered:  {},
}

// ParsePlanStatus normalizes a raw status string.
func ParsePlanStatus(raw string) (PlanStatus, bool) {
	status := PlanStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := planStatusSet[status]
	return status, ok
}

// SegmentKind classifies an EDL entry.
type SegmentKind string

const (
	SegmentKeep       SegmentKind = "keep"
	SegmentSkip       SegmentKind = "skip"
	SegmentTransition SegmentKind = "transition"
)

// ParseSegmentKind normalizes a raw kind string.
func ParseSegmentKind(raw string) (SegmentKind, bool) {
	kind := SegmentKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case SegmentKeep, SegmentSkip, SegmentTransition:
		return kind, true
	}
	return "", false
}

// Segment is one EDL entry on the source timeline.
type Segment struct {
	Start              float64     `json:"start"`
	End                float64     `json:"end"`
	Kind               SegmentKind `json:"kind"`
	TransitionKind     string      `json:"transition_kind,omitempty"`
	TransitionDuration float64     `json:"transition_duration,omitempty"`
	Reason             string      `json:"reason,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// StoryArc carries the planner's chosen hook, climax and resolution points.
type StoryArc struct {
	HookT       float64 `json:"hook_t"`
	ClimaxT     float64 `json:"climax_t"`
	ResolutionT float64 `json:"resolution_t"`
}

// KeyMoment is an advisory high-value span from the planner.
type KeyMoment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Importance string  `json:"importance,omitempty"`
	Role       string  `json:"role,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Transition is an advisory cut annotation from the planner.
type Transition struct {
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Kind   string  `json:"kind,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Recommendation is an advisory note from the planner.
type Recommendation struct {
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Priority  string  `json:"priority,omitempty"`
}

// StoryBrief is the caller-supplied story request the planner is
// conditioned on. DesiredLengthPct is a fraction of source duration.
type StoryBrief struct {
	Summary          string   `json:"summary,omitempty"`
	StoryPrompt      string   `json:"story_prompt"`
	TargetAudience   string   `json:"target_audience,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	KeyMessage       string   `json:"key_message,omitempty"`
	ArcDescriptors   []string `json:"story_arc,omitempty"`
	StylePreferences []string `json:"style_preferences,omitempty"`
	DesiredLengthPct float64  `json:"desired_length_pct"`
	StrictCoverage   bool     `json:"strict_coverage,omitempty"`
}

// Plan is a validated edit decision list plus the planner's advisory output.
type Plan struct {
	ID              string           `json:"plan_id"`
	MediaID         string           `json:"media_id"`
	Status          PlanStatus       `json:"status"`
	Mode            string           `json:"mode"`
	StoryArc        *StoryArc        `json:"story_arc,omitempty"`
	EDL             []Segment        `json:"edl"`
	KeyMoments      []KeyMoment      `json:"key_moments,omitempty"`
	Transitions     []Transition     `json:"transitions,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// KeepSegments returns the Keep entries of the EDL in order.
func (p *Plan) KeepSegments() []Segment {
	if p == nil {
		return nil
	}
	keeps := make([]Segment, 0, len(p.EDL))
	for _, seg := range p.EDL {
		if seg.Kind == SegmentKeep {
			keeps = append(keeps, seg)
		}
	}
	return keeps
}

// TotalKeep returns the summed duration of Keep segments in seconds.
func (p *Plan) TotalKeep() float64 {
	total := 0.0
	for _, seg := range p.KeepSegments() {
		total += seg.Duration()
	}
	return total
}
