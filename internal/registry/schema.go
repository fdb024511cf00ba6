package registry

import (
	"context"

	"storycut/internal/services"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		source_uri TEXT NOT NULL,
		title TEXT,
		description TEXT,
		status TEXT NOT NULL,
		tech_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 1,
		input_json TEXT,
		result_json TEXT,
		error_code TEXT,
		error_message TEXT,
		error_details TEXT,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		not_before TEXT,
		lease_heartbeat TEXT,
		usage_json TEXT,
		enqueued_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, not_before, enqueued_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_media ON jobs(media_id, kind)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		media_id TEXT PRIMARY KEY,
		language TEXT,
		segments_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS silence_maps (
		media_id TEXT PRIMARY KEY,
		intervals_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scene_cuts (
		media_id TEXT PRIMARY KEY,
		cuts_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS frames (
		media_id TEXT NOT NULL,
		t REAL NOT NULL,
		description TEXT NOT NULL,
		confidence REAL,
		PRIMARY KEY (media_id, t)
	)`,
	`CREATE TABLE IF NOT EXISTS scenes (
		media_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		start REAL NOT NULL,
		end REAL NOT NULL,
		description TEXT,
		PRIMARY KEY (media_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS clip_candidates (
		media_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		start REAL NOT NULL,
		end REAL NOT NULL,
		score REAL NOT NULL,
		features_json TEXT,
		hook_text TEXT,
		PRIMARY KEY (media_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		body_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_media ON plans(media_id)`,
	`CREATE TABLE IF NOT EXISTS renders (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		aspect_ratio TEXT NOT NULL,
		status TEXT NOT NULL,
		output_uri TEXT,
		duration_seconds REAL,
		error_code TEXT,
		error_message TEXT,
		error_details TEXT,
		started_at TEXT,
		finished_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_renders_plan ON renders(plan_id, aspect_ratio)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.execWithoutResultRetry(ctx, stmt); err != nil {
			return services.Wrap(services.ErrConfiguration, "registry", "init schema", "", err)
		}
	}
	return nil
}
