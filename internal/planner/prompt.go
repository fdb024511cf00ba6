package planner

import (
	"fmt"
	"strings"

	"storycut/internal/media"
)

// planContract is the exact response shape demanded from the model.
// Anything outside this object is rejected downstream.
const planContract = `{
  "story_arc":       {"hook_t": <s>, "climax_t": <s>, "resolution_t": <s>},
  "key_moments":     [{"start": <s>, "end": <s>, "importance": "high|medium|low", "role": "hook|build|climax|resolution", "reason": <str>}],
  "edl":             [{"start": <s>, "end": <s>, "kind": "keep|skip|transition", "transition_kind": "fade|cut|xfade", "transition_duration": <s>, "reason": <str>}],
  "transitions":     [{"from": <s>, "to": <s>, "kind": <str>, "reason": <str>}],
  "recommendations": [{"message": <str>, "timestamp": <s>, "priority": "high|medium|low"}]
}`

// PromptInput is everything the builder needs. Equal inputs produce
// byte-equal prompts.
type PromptInput struct {
	Duration     float64
	Brief        media.StoryBrief
	Data         Compressed
	TolerancePct float64
}

// TargetSeconds returns the requested output length on the source
// timeline.
func (in PromptInput) TargetSeconds() float64 {
	return in.Brief.DesiredLengthPct * in.Duration
}

// ToleranceSeconds returns the acceptance band around the target.
func (in PromptInput) ToleranceSeconds() float64 {
	return in.TargetSeconds() * in.TolerancePct / 100
}

// BuildSystemPrompt states the hard requirements: the exact JSON shape,
// the timestamp bounds and the coverage window.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are a video story editor. Produce an edit decision list for the source video described by the user.\n\n")
	b.WriteString("Hard requirements:\n")
	b.WriteString("1. Respond with a single JSON object of exactly this shape, no prose before or after it:\n")
	b.WriteString(planContract)
	b.WriteString("\n")
	fmt.Fprintf(&b, "2. Every timestamp must lie in [0.000, %.3f] seconds on the source timeline.\n", in.Duration)
	fmt.Fprintf(&b, "3. The summed duration of \"keep\" segments must be %.3f seconds, within a tolerance of %.3f seconds.\n", in.TargetSeconds(), in.ToleranceSeconds())
	b.WriteString("4. \"keep\" segments must not overlap and must be ordered by start time.\n")
	return b.String()
}

// BuildUserPrompt carries the compressed context and the story brief.
func BuildUserPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source video: %.3f seconds.\n", in.Duration)
	fmt.Fprintf(&b, "Context summary: %s\n", in.Data.Summary)

	if len(in.Data.Scenes) > 0 {
		b.WriteString("\nScenes:\n")
		for _, s := range in.Data.Scenes {
			fmt.Fprintf(&b, "- [%.3f-%.3f] %s\n", s.Start, s.End, s.Description)
		}
	}
	if len(in.Data.Frames) > 0 {
		b.WriteString("\nFrames:\n")
		for _, f := range in.Data.Frames {
			fmt.Fprintf(&b, "- t=%.3f: %s\n", f.T, f.Description)
		}
	}
	if len(in.Data.Segments) > 0 {
		b.WriteString("\nTranscript:\n")
		for _, seg := range in.Data.Segments {
			fmt.Fprintf(&b, "- [%.3f-%.3f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
		}
	}

	b.WriteString("\nStory requirements:\n")
	fmt.Fprintf(&b, "- Story prompt: %s\n", in.Brief.StoryPrompt)
	if in.Brief.Summary != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", in.Brief.Summary)
	}
	if in.Brief.TargetAudience != "" {
		fmt.Fprintf(&b, "- Target audience: %s\n", in.Brief.TargetAudience)
	}
	if in.Brief.Tone != "" {
		fmt.Fprintf(&b, "- Tone: %s\n", in.Brief.Tone)
	}
	if in.Brief.KeyMessage != "" {
		fmt.Fprintf(&b, "- Key message: %s\n", in.Brief.KeyMessage)
	}
	if len(in.Brief.ArcDescriptors) > 0 {
		fmt.Fprintf(&b, "- Story arc: %s\n", strings.Join(in.Brief.ArcDescriptors, ", "))
	}
	if len(in.Brief.StylePreferences) > 0 {
		fmt.Fprintf(&b, "- Style preferences: %s\n", strings.Join(in.Brief.StylePreferences, ", "))
	}
	fmt.Fprintf(&b, "- Desired length: %.1f%% of the source (%.3f seconds, tolerance %.3f seconds).\n",
		in.Brief.DesiredLengthPct*100, in.TargetSeconds(), in.ToleranceSeconds())

	return b.String()
}
