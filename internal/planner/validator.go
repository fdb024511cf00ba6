package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"storycut/internal/media"
	"storycut/internal/services"
)

// minSegmentSeconds is the smallest EDL entry that survives clipping.
const minSegmentSeconds = 0.1

// ValidateOptions parameterizes the coverage check.
type ValidateOptions struct {
	Duration         float64
	TargetSeconds    float64
	ToleranceSeconds float64
	// StrictCoverage turns the coverage warning into a rejection.
	StrictCoverage bool
}

// Validate sanitizes a draft plan in place and decides acceptance. The
// sanitized plan plus warnings is returned even on rejection so the
// caller can persist the rejected plan for inspection. Validation is a
// fixed point: running it twice yields the same plan and warnings.
func Validate(plan *media.Plan, opts ValidateOptions) (*media.Plan, error) {
	if plan == nil {
		return nil, services.Wrap(services.ErrContract, "planner", "validate", "InvalidPlan: no plan", nil)
	}
	plan.Warnings = nil

	plan.EDL = sanitizeSegments(plan.EDL, opts.Duration)
	plan.EDL = mergeKeeps(plan.EDL)
	roundPlanTimestamps(plan)

	totalKeep := plan.TotalKeep()

	if opts.TargetSeconds > 0 {
		lo := opts.TargetSeconds - opts.ToleranceSeconds
		hi := opts.TargetSeconds + opts.ToleranceSeconds
		if totalKeep < lo || totalKeep > hi {
			warning := fmt.Sprintf("coverage_warning: total keep %.3fs outside [%.3fs, %.3fs]", totalKeep, lo, hi)
			if opts.StrictCoverage {
				return plan, services.Wrap(services.ErrContract, "planner", "validate", "InvalidPlan: "+warning, nil)
			}
			plan.Warnings = append(plan.Warnings, warning)
		}
	}

	if arc := plan.StoryArc; arc != nil {
		ordered := arc.HookT < arc.ClimaxT && arc.ClimaxT < arc.ResolutionT
		contained := keepContains(plan, arc.HookT) && keepContains(plan, arc.ClimaxT) && keepContains(plan, arc.ResolutionT)
		if !ordered || !contained {
			plan.Warnings = append(plan.Warnings, "story_arc_warning: hook, climax and resolution must be ordered and inside keep segments")
		}
	}

	if totalKeep == 0 {
		return plan, services.Wrap(services.ErrContract, "planner", "validate", "InvalidPlan: UnrenderablePlan: no keep segments", nil)
	}
	return plan, nil
}

// sanitizeSegments drops unknown kinds, clips to the timeline and drops
// entries shorter than the minimum.
func sanitizeSegments(segments []media.Segment, duration float64) []media.Segment {
	out := make([]media.Segment, 0, len(segments))
	for _, seg := range segments {
		kind, ok := media.ParseSegmentKind(string(seg.Kind))
		if !ok {
			continue
		}
		seg.Kind = kind
		if seg.Start < 0 {
			seg.Start = 0
		}
		if duration > 0 && seg.End > duration {
			seg.End = duration
		}
		if seg.End-seg.Start < minSegmentSeconds {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// mergeKeeps sorts the EDL by start and merges overlapping Keep entries,
// concatenating their reasons.
func mergeKeeps(segments []media.Segment) []media.Segment {
	var keeps, rest []media.Segment
	for _, seg := range segments {
		if seg.Kind == media.SegmentKeep {
			keeps = append(keeps, seg)
		} else {
			rest = append(rest, seg)
		}
	}
	sort.SliceStable(keeps, func(i, j int) bool { return keeps[i].Start < keeps[j].Start })
	merged := make([]media.Segment, 0, len(keeps))
	for _, seg := range keeps {
		if n := len(merged); n > 0 && seg.Start < merged[n-1].End {
			last := &merged[n-1]
			if seg.End > last.End {
				last.End = seg.End
			}
			last.Reason = joinReasons(last.Reason, seg.Reason)
			continue
		}
		merged = append(merged, seg)
	}

	out := append(merged, rest...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func joinReasons(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || a == b || strings.Contains(a, b):
		return a
	default:
		return a + "; " + b
	}
}

func roundPlanTimestamps(plan *media.Plan) {
	for i := range plan.EDL {
		plan.EDL[i].Start = roundMS(plan.EDL[i].Start)
		plan.EDL[i].End = roundMS(plan.EDL[i].End)
		plan.EDL[i].TransitionDuration = roundMS(plan.EDL[i].TransitionDuration)
	}
	if plan.StoryArc != nil {
		plan.StoryArc.HookT = roundMS(plan.StoryArc.HookT)
		plan.StoryArc.ClimaxT = roundMS(plan.StoryArc.ClimaxT)
		plan.StoryArc.ResolutionT = roundMS(plan.StoryArc.ResolutionT)
	}
	for i := range plan.KeyMoments {
		plan.KeyMoments[i].Start = roundMS(plan.KeyMoments[i].Start)
		plan.KeyMoments[i].End = roundMS(plan.KeyMoments[i].End)
	}
	for i := range plan.Transitions {
		plan.Transitions[i].From = roundMS(plan.Transitions[i].From)
		plan.Transitions[i].To = roundMS(plan.Transitions[i].To)
	}
	for i := range plan.Recommendations {
		plan.Recommendations[i].Timestamp = roundMS(plan.Recommendations[i].Timestamp)
	}
}

func roundMS(t float64) float64 {
	return math.Round(t*1000) / 1000
}

func keepContains(plan *media.Plan, t float64) bool {
	for _, seg := range plan.KeepSegments() {
		if t >= seg.Start && t <= seg.End {
			return true
		}
	}
	return false
}
