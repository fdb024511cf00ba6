package workflow

import (
	"context"
	"sort"

	"storycut/internal/media"
	"storycut/internal/stage"
)

// Status is a point-in-time snapshot of the supervisor for the status
// endpoint.
type Status struct {
	Running   bool                    `json:"running"`
	Workers   int                     `json:"workers"`
	JobCounts map[media.JobStatus]int `json:"job_counts"`
	Stages    []stage.Health          `json:"stages"`
	LastError string                  `json:"last_error,omitempty"`
}

// Health runs every registered handler's health check and gathers queue
// depth counters.
func (m *Manager) Health(ctx context.Context) (Status, error) {
	m.mu.Lock()
	handlers := make([]stage.Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	running := m.running
	lastErr := m.lastErr
	m.mu.Unlock()

	status := Status{
		Running: running,
		Workers: m.cfg.Workflow.WorkerPoolSize,
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}

	counts, err := m.store.JobCounts(ctx)
	if err != nil {
		return status, err
	}
	status.JobCounts = counts

	for _, h := range handlers {
		status.Stages = append(status.Stages, h.HealthCheck(ctx))
	}
	sort.Slice(status.Stages, func(i, j int) bool {
		return status.Stages[i].Name < status.Stages[j].Name
	})
	return status, nil
}

// Healthy reports whether every registered stage passed its check.
func (s Status) Healthy() bool {
	for _, h := range s.Stages {
		if !h.Ready {
			return false
		}
	}
	return true
}
