package api

import (
	"storycut/internal/media"
)

// FromMedia converts a media record into its wire form.
func FromMedia(m *media.Media) MediaView {
	return MediaView{
		MediaID:     m.ID,
		SourceURI:   m.SourceURI,
		Title:       m.Title,
		Description: m.Description,
		Status:      string(m.Status),
		Tech:        m.Tech,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromJob converts a job record into its wire form.
func FromJob(j *media.Job) JobView {
	return JobView{
		JobID:      j.ID,
		MediaID:    j.MediaID,
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		Attempt:    j.Attempt,
		ResultJSON: j.ResultJSON,
		Error:      j.Error,
		Usage:      j.Usage,
		EnqueuedAt: j.EnqueuedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// FromJobs converts a job list, preserving order.
func FromJobs(jobs []*media.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, FromJob(j))
	}
	return out
}

// FromPlan converts a plan record into its wire form.
func FromPlan(p *media.Plan) PlanView {
	return PlanView{
		PlanID:          p.ID,
		MediaID:         p.MediaID,
		Status:          string(p.Status),
		Mode:            p.Mode,
		StoryArc:        p.StoryArc,
		EDL:             p.EDL,
		KeyMoments:      p.KeyMoments,
		Transitions:     p.Transitions,
		Recommendations: p.Recommendations,
		Warnings:        p.Warnings,
		TotalKeep:       p.TotalKeep(),
		CreatedAt:       p.CreatedAt,
	}
}

// FromRender converts a render record into its wire form. The output
// URI and duration are withheld until the render is completed.
func FromRender(r *media.Render) RenderView {
	view := RenderView{
		RenderID:    r.ID,
		MediaID:     r.MediaID,
		PlanID:      r.PlanID,
		AspectRatio: string(r.AspectRatio),
		Status:      string(r.Status),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
	}
	if r.Status == media.RenderCompleted {
		view.OutputURI = r.OutputURI
		view.DurationSeconds = r.DurationSeconds
	}
	return view
}
