package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, database and bind address configuration.
type Paths struct {
	BlobRoot string `toml:"blob_root"`
	LogDir   string `toml:"log_dir"`
	DBPath   string `toml:"db_path"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workflow contains worker pool and retry configuration.
type Workflow struct {
	WorkerPoolSize           int `toml:"worker_pool_size"`
	MaxAttemptsDefault       int `toml:"max_attempts_default"`
	MaxAttemptsPlanStory     int `toml:"max_attempts_plan_story"`
	RetryBackoffBaseSeconds  int `toml:"retry_backoff_base_s"`
	RetryJitterSeconds       int `toml:"retry_jitter_s"`
	QueuePollIntervalSeconds int `toml:"queue_poll_interval"`
	PreconditionDelaySeconds int `toml:"precondition_delay_s"`
	HeartbeatInterval        int `toml:"heartbeat_interval"`
	HeartbeatTimeout         int `toml:"heartbeat_timeout"`
	CancelGraceSeconds       int `toml:"cancel_grace_s"`
}

// Enrich contains enrichment pipeline tuning.
type Enrich struct {
	ProbeTimeoutSeconds     int     `toml:"probe_timeout_s"`
	MinSilenceSeconds       float64 `toml:"min_silence_s"`
	FrameSampleSeconds      float64 `toml:"frame_sample_s"`
	SceneThreshold          float64 `toml:"scene_threshold"`
	TranscribeTimeoutFactor float64 `toml:"transcribe_timeout_factor"`
	FrameBatchSize          int     `toml:"frame_batch_size"`
}

// Clips contains heuristic clip selector tuning.
type Clips struct {
	MinSeconds    float64  `toml:"clip_min_s"`
	MaxSeconds    float64  `toml:"clip_max_s"`
	MaxCandidates int      `toml:"clip_n"`
	HookKeywords  []string `toml:"hook_keywords"`
}

// Planner contains story planner and compressor tuning.
type Planner struct {
	Temperature           float64 `toml:"plan_temperature"`
	CoverageTolerancePct  float64 `toml:"plan_coverage_tolerance_pct"`
	FrameCap              int     `toml:"compress_frame_cap"`
	SceneCap              int     `toml:"compress_scene_cap"`
	SegmentCap            int     `toml:"compress_segment_cap"`
	ModelConcurrencyLimit int     `toml:"model_concurrency_limit"`
}

// Render contains renderer tuning.
type Render struct {
	ReferenceWidth     int     `toml:"render_reference_width"`
	LoudnessTargetLUFS float64 `toml:"render_loudness_target_lufs"`
	SegmentParallelism int     `toml:"render_segment_parallelism"`
	ApplyTimeoutFactor float64 `toml:"apply_timeout_factor"`
	CaptionFont        string  `toml:"caption_font"`
	CaptionFontSize    int     `toml:"caption_font_size"`
}

// LLM contains the external model connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VisionModel    string `toml:"vision_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Whisper contains transcription tool settings.
type Whisper struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Notify contains push notification settings. Notifications stay off
// until a topic is configured.
type Notify struct {
	NtfyURL        string `toml:"ntfy_url"`
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the daemon and CLI.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Workflow Workflow `toml:"workflow"`
	Enrich   Enrich   `toml:"enrich"`
	Clips    Clips    `toml:"clips"`
	Planner  Planner  `toml:"planner"`
	Render   Render   `toml:"render"`
	LLM      LLM      `toml:"llm"`
	Whisper  Whisper  `toml:"whisper"`
	Notify   Notify   `toml:"notify"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storycut/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storycut.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation,
// including the blob store layout.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.LogDir,
		c.Paths.BlobRoot,
		filepath.Join(c.Paths.BlobRoot, "originals"),
		filepath.Join(c.Paths.BlobRoot, "derived"),
		filepath.Join(c.Paths.BlobRoot, "renders"),
		filepath.Join(c.Paths.BlobRoot, "tmp"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// SampleConfig returns the embedded sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
