package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Workflow.MaxAttemptsPlanStory != 2 {
		t.Fatalf("plan_story attempts = %d", cfg.Workflow.MaxAttemptsPlanStory)
	}
}

func TestLoadMergesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
blob_root = "` + filepath.Join(dir, "blobs") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
db_path = "` + filepath.Join(dir, "registry.db") + `"

[workflow]
worker_pool_size = 2

[planner]
plan_temperature = 0.7
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Workflow.WorkerPoolSize != 2 {
		t.Fatalf("worker_pool_size = %d", cfg.Workflow.WorkerPoolSize)
	}
	if cfg.Planner.Temperature != 0.7 {
		t.Fatalf("plan_temperature = %v", cfg.Planner.Temperature)
	}
	// Untouched sections keep defaults.
	if cfg.Render.ReferenceWidth != 1080 {
		t.Fatalf("render_reference_width = %d", cfg.Render.ReferenceWidth)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Workflow.WorkerPoolSize = 0 },
		func(c *Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval },
		func(c *Config) { c.Enrich.MinSilenceSeconds = 0 },
		func(c *Config) { c.Enrich.SceneThreshold = 1.5 },
		func(c *Config) { c.Clips.MaxSeconds = c.Clips.MinSeconds },
		func(c *Config) { c.Planner.CoverageTolerancePct = 0 },
		func(c *Config) { c.Render.LoudnessTargetLUFS = 3 },
	}
	for i, mutate := range cases {
		cfg := Default()
		if err := cfg.normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestEnsureDirectoriesCreatesBlobLayout(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Paths.BlobRoot = filepath.Join(dir, "blobs")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.DBPath = filepath.Join(dir, "db", "registry.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{"originals", "derived", "renders", "tmp"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.BlobRoot, sub)); err != nil {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "db")); err != nil {
		t.Errorf("db dir missing: %v", err)
	}
}

func TestSampleConfigMentionsEverySection(t *testing.T) {
	sample := SampleConfig()
	for _, section := range []string{"[paths]", "[workflow]", "[enrich]", "[clips]", "[planner]", "[render]", "[llm]", "[whisper]", "[logging]"} {
		if !strings.Contains(sample, section) {
			t.Errorf("sample config missing %s", section)
		}
	}
}
