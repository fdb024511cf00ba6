// Package workflow runs the job supervisor: a worker pool that claims
// queued jobs, drives their handlers, and schedules retries with
// backoff. Failed jobs are never mutated; a retry is a fresh job with
// attempt+1.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/notifications"
	"storycut/internal/registry"
	"storycut/internal/stage"
)

// Manager coordinates job processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *registry.Store
	blobs        *blob.Store
	logger       *slog.Logger
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor
	notifier  notifications.Service

	handlers map[media.JobKind]stage.Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager. Handlers are registered
// before Start.
func NewManager(cfg *config.Config, store *registry.Store, blobs *blob.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		blobs:        blobs,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: time.Duration(cfg.Workflow.QueuePollIntervalSeconds) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		handlers: make(map[media.JobKind]stage.Handler),
	}
}

// SetNotifier installs the push notification sink. Call before Start.
func (m *Manager) SetNotifier(n notifications.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Register installs a handler for its job kind. The last registration
// for a kind wins.
func (m *Manager) Register(handlers ...stage.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handlers {
		if h == nil {
			continue
		}
		m.handlers[h.Kind()] = h
	}
}

// Handler returns the registered handler for a kind, or nil.
func (m *Manager) Handler(kind media.JobKind) stage.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[kind]
}

// Start launches the worker pool and the stale-job reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not registered")
	}
	workers := m.cfg.Workflow.WorkerPoolSize
	if workers <= 0 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runReclaimer(runCtx)
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the manager has been started.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent supervisor-level error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
