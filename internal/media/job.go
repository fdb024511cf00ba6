package media

import (
	"strings"
	"time"
)

// JobKind identifies the handler that executes a job.
type JobKind string

const (
	JobProbe          JobKind = "probe"
	JobTranscribe     JobKind = "transcribe"
	JobDetectSilence  JobKind = "detect_silence"
	JobDetectScenes   JobKind = "detect_scenes"
	JobDescribeFrames JobKind = "describe_frames"
	JobIndexScenes    JobKind = "index_scenes"
	JobSelectClips    JobKind = "select_clips"
	JobPlanHeuristic  JobKind = "plan_heuristic"
	JobPlanStory      JobKind = "plan_story"
	JobApplyPlan      JobKind = "apply_plan"
)

var allJobKinds = []JobKind{
	JobProbe,
	JobTranscribe,
	JobDetectSilence,
	JobDetectScenes,
	JobDescribeFrames,
	JobIndexScenes,
	JobSelectClips,
	JobPlanHeuristic,
	JobPlanStory,
	JobApplyPlan,
}

var jobKindSet = func() map[JobKind]struct{} {
	set := make(map[JobKind]struct{}, len(allJobKinds))
	for _, kind := range allJobKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// EnrichmentKinds are the kinds callers may request via the enrich endpoint.
var EnrichmentKinds = []JobKind{
	JobTranscribe,
	JobDetectSilence,
	JobDetectScenes,
	JobDescribeFrames,
	JobIndexScenes,
	JobSelectClips,
}

// ParseJobKind normalizes a raw kind string.
func ParseJobKind(raw string) (JobKind, bool) {
	kind := JobKind(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := jobKindSet[kind]
	return kind, ok
}

// AllJobKinds returns the known kinds in a stable order.
func AllJobKinds() []JobKind {
	out := make([]JobKind, len(allJobKinds))
	copy(out, allJobKinds)
	return out
}

// JobStatus represents the lifecycle of an asynchronous job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var jobStatusSet = map[JobStatus]struct{}{
	JobQueued:    {},
	JobRunning:   {},
	JobCompleted: {},
	JobFailed:    {},
	JobCancelled: {},
}

// ParseJobStatus normalizes a raw status string.
func ParseJobStatus(raw string) (JobStatus, bool) {
	status := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := jobStatusSet[status]
	return status, ok
}

// Terminal reports whether no further transitions may leave this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// jobTransitions is the allowed state lattice. Terminal states have no exits.
var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:  {JobRunning, JobCancelled},
	JobRunning: {JobCompleted, JobFailed, JobCancelled},
}

// CanTransition reports whether from -> to is a legal job transition.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobError is the serialized failure attached to a terminal job or render.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TokenUsage records model-side token accounting for planner jobs.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Job represents one unit of asynchronous work. A failed job is never
// mutated after terminal; retries create a successor with attempt+1.
type Job struct {
	ID              string
	MediaID         string
	Kind            JobKind
	Status          JobStatus
	Attempt         int
	InputJSON       string
	ResultJSON      string
	Error           *JobError
	CancelRequested bool
	NotBefore       *time.Time
	LeaseHeartbeat  *time.Time
	Usage           *TokenUsage
	EnqueuedAt      time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}
