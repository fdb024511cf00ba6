// Package api defines the JSON shapes of the control plane. The daemon
// serves them; the CLI consumes them. Registry types never cross the
// wire directly.
package api

import (
	"time"

	"storycut/internal/media"
)

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RegisterMediaRequest is the body of POST /media.
type RegisterMediaRequest struct {
	SourceURI   string `json:"source_uri"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// RegisterMediaResponse acknowledges a registration.
type RegisterMediaResponse struct {
	MediaID string `json:"media_id"`
	Status  string `json:"status"`
}

// DerivedURIs points at the media's derived blob artifacts that exist.
type DerivedURIs struct {
	Audio  string `json:"audio,omitempty"`
	Frames string `json:"frames,omitempty"`
}

// MediaView is the wire form of a media record.
type MediaView struct {
	MediaID     string              `json:"media_id"`
	SourceURI   string              `json:"source_uri"`
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Status      string              `json:"status"`
	Tech        *media.TechMetadata `json:"tech,omitempty"`
	Derived     *DerivedURIs        `json:"derived,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// EnrichRequest selects the enrichment kinds to enqueue. An empty list
// means every enrichment kind.
type EnrichRequest struct {
	Kinds []string `json:"kinds"`
}

// EnrichedKind reports the outcome for one requested kind.
type EnrichedKind struct {
	Kind    string `json:"kind"`
	JobID   string `json:"job_id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// EnrichResponse lists the jobs enqueued (or skipped as already done).
type EnrichResponse struct {
	Kinds []EnrichedKind `json:"kinds"`
}

// JobView is the wire form of a job record.
type JobView struct {
	JobID      string            `json:"job_id"`
	MediaID    string            `json:"media_id"`
	Kind       string            `json:"kind"`
	Status     string            `json:"status"`
	Attempt    int               `json:"attempt"`
	ResultJSON string            `json:"result_json,omitempty"`
	Error      *media.JobError   `json:"error,omitempty"`
	Usage      *media.TokenUsage `json:"usage,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// JobListResponse wraps a media's job history.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// ScenesResponse wraps the indexed scenes of a media.
type ScenesResponse struct {
	Scenes []media.Scene `json:"scenes"`
}

// CandidatesResponse wraps the heuristic clip candidates. The list is
// present but empty for silent media.
type CandidatesResponse struct {
	Candidates []media.ClipCandidate `json:"candidates"`
}

// HeuristicPlanRequest selects a clip candidate by index or names a
// free-form source window.
type HeuristicPlanRequest struct {
	CandidateIndex *int    `json:"candidate_index,omitempty"`
	Start          float64 `json:"start,omitempty"`
	End            float64 `json:"end,omitempty"`
}

// StoryPlanResponse acknowledges an asynchronous story planning run.
type StoryPlanResponse struct {
	PlanJobID string `json:"plan_job_id"`
}

// PlanView is the wire form of a plan with its advisory output.
type PlanView struct {
	PlanID          string                 `json:"plan_id"`
	MediaID         string                 `json:"media_id"`
	Status          string                 `json:"status"`
	Mode            string                 `json:"mode"`
	StoryArc        *media.StoryArc        `json:"story_arc,omitempty"`
	EDL             []media.Segment        `json:"edl"`
	KeyMoments      []media.KeyMoment      `json:"key_moments,omitempty"`
	Transitions     []media.Transition     `json:"transitions,omitempty"`
	Recommendations []media.Recommendation `json:"recommendations,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
	TotalKeep       float64                `json:"total_keep_seconds"`
	CreatedAt       time.Time              `json:"created_at"`
}

// RenderRequest is the body of POST /plans/{plan_id}/render.
type RenderRequest struct {
	AspectRatios   []string `json:"aspect_ratios"`
	Captions       bool     `json:"captions,omitempty"`
	NormaliseAudio bool     `json:"normalise_audio,omitempty"`
}

// RenderAccepted acknowledges an asynchronous apply run.
type RenderAccepted struct {
	RenderJobID string `json:"render_job_id"`
}

// RenderView is the wire form of a render record. OutputURI is present
// only once the render completed.
type RenderView struct {
	RenderID        string          `json:"render_id"`
	MediaID         string          `json:"media_id"`
	PlanID          string          `json:"plan_id"`
	AspectRatio     string          `json:"aspect_ratio"`
	Status          string          `json:"status"`
	OutputURI       string          `json:"output_uri,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Error           *media.JobError `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
