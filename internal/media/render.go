package media

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RenderStatus represents the lifecycle of one aspect-ratio render.
type RenderStatus string

const (
	RenderQueued    RenderStatus = "queued"
	RenderRunning   RenderStatus = "running"
	RenderCompleted RenderStatus = "completed"
	RenderFailed    RenderStatus = "failed"
	RenderCancelled RenderStatus = "cancelled"
)

var renderStatusSet = map[RenderStatus]struct{}{
	RenderQueued:    {},
	RenderRunning:   {},
	RenderCompleted: {},
	RenderFailed:    {},
	RenderCancelled: {},
}

// ParseRenderStatus normalizes a raw status string.
func ParseRenderStatus(raw string) (RenderStatus, bool) {
	status := RenderStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := renderStatusSet[status]
	return status, ok
}

// Terminal reports whether the render reached a final state.
func (s RenderStatus) Terminal() bool {
	switch s {
	case RenderCompleted, RenderFailed, RenderCancelled:
		return true
	default:
		return false
	}
}

// AspectRatio is a "W:H" ratio string such as "16:9".
type AspectRatio string

// Parse returns the width and height terms of the ratio.
func (a AspectRatio) Parse() (w, h int, err error) {
	parts := strings.SplitN(string(a), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("aspect ratio %q: want W:H", string(a))
	}
	w, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("aspect ratio %q: bad width", string(a))
	}
	h, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("aspect ratio %q: bad height", string(a))
	}
	return w, h, nil
}

// Slug returns a filesystem-safe form of the ratio ("16x9").
func (a AspectRatio) Slug() string {
	return strings.ReplaceAll(string(a), ":", "x")
}

// Render is one output of applying a plan at a given aspect ratio. One
// active render exists per (plan_id, aspect_ratio); a failed record does
// not block a fresh attempt.
type Render struct {
	ID              string
	MediaID         string
	PlanID          string
	AspectRatio     AspectRatio
	Status          RenderStatus
	OutputURI       string
	DurationSeconds float64
	Error           *JobError
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
}
