// Command storycutd runs the storycut daemon: the job supervisor and
// the HTTP control plane over a shared registry.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/daemon"
	"storycut/internal/logging"
	"storycut/internal/notifications"
	"storycut/internal/planner"
	"storycut/internal/preflight"
	"storycut/internal/registry"
	"storycut/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to the storycut config file")
	flag.Parse()

	// Local overrides for API keys and paths, ignored when absent.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	for _, failed := range preflight.Failures(preflight.RunAll(cfg)) {
		logger.Warn("preflight check failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail))
	}

	store, err := registry.Open(cfg)
	if err != nil {
		logger.Error("open registry", logging.Error(err))
		return
	}
	blobs := blob.New(cfg.Paths.BlobRoot)

	manager := workflow.NewManager(cfg, store, blobs, logger)
	manager.SetNotifier(notifications.NewService(cfg))
	registerHandlers(manager, cfg, store, blobs, logger)

	heuristic := planner.NewHeuristicPlanner(cfg, store, logger)
	d, err := daemon.New(cfg, store, blobs, manager, heuristic, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("storycutd shutting down")
}
