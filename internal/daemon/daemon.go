// Package daemon wires the registry, the job supervisor and the HTTP
// control plane into one single-instance background process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/planner"
	"storycut/internal/registry"
	"storycut/internal/workflow"
)

// Daemon coordinates the background services and enforces
// single-instance execution through a file lock.
type Daemon struct {
	cfg      *config.Config
	store    *registry.Store
	blobs    *blob.Store
	logger   *slog.Logger
	workflow *workflow.Manager
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. The heuristic
// planner is needed separately because its endpoint runs synchronously.
func New(cfg *config.Config, store *registry.Store, blobs *blob.Store, wf *workflow.Manager, heuristic *planner.HeuristicPlanner, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || blobs == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, blobs and workflow manager")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "storycutd.lock")
	d := &Daemon{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, store, blobs, wf, heuristic, logger)
	return d, nil
}

// Start acquires the instance lock and launches the supervisor and the
// control plane.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another storycut daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop shuts down the control plane and drains the supervisor.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the registry.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr returns the control plane's bound address once started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}
