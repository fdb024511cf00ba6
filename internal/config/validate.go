package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateEnrich(); err != nil {
		return err
	}
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validatePlanner(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_pool_size":        c.Workflow.WorkerPoolSize,
		"workflow.max_attempts_default":    c.Workflow.MaxAttemptsDefault,
		"workflow.max_attempts_plan_story": c.Workflow.MaxAttemptsPlanStory,
		"workflow.retry_backoff_base_s":    c.Workflow.RetryBackoffBaseSeconds,
		"workflow.queue_poll_interval":     c.Workflow.QueuePollIntervalSeconds,
		"workflow.precondition_delay_s":    c.Workflow.PreconditionDelaySeconds,
		"workflow.cancel_grace_s":          c.Workflow.CancelGraceSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryJitterSeconds < 0 {
		return errors.New("workflow.retry_jitter_s must be >= 0")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateEnrich() error {
	if c.Enrich.ProbeTimeoutSeconds <= 0 {
		return errors.New("enrich.probe_timeout_s must be positive")
	}
	if c.Enrich.MinSilenceSeconds <= 0 {
		return errors.New("enrich.min_silence_s must be positive")
	}
	if c.Enrich.FrameSampleSeconds <= 0 {
		return errors.New("enrich.frame_sample_s must be positive")
	}
	if c.Enrich.SceneThreshold <= 0 || c.Enrich.SceneThreshold >= 1 {
		return errors.New("enrich.scene_threshold must be between 0 and 1")
	}
	if c.Enrich.TranscribeTimeoutFactor <= 0 {
		return errors.New("enrich.transcribe_timeout_factor must be positive")
	}
	if c.Enrich.FrameBatchSize <= 0 {
		return errors.New("enrich.frame_batch_size must be positive")
	}
	return nil
}

func (c *Config) validateClips() error {
	if c.Clips.MinSeconds <= 0 {
		return errors.New("clips.clip_min_s must be positive")
	}
	if c.Clips.MaxSeconds <= c.Clips.MinSeconds {
		return errors.New("clips.clip_max_s must be greater than clips.clip_min_s")
	}
	if c.Clips.MaxCandidates <= 0 {
		return errors.New("clips.clip_n must be positive")
	}
	return nil
}

func (c *Config) validatePlanner() error {
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		return errors.New("planner.plan_temperature must be between 0 and 2")
	}
	if c.Planner.CoverageTolerancePct <= 0 || c.Planner.CoverageTolerancePct > 100 {
		return errors.New("planner.plan_coverage_tolerance_pct must be between 0 and 100")
	}
	if err := ensurePositiveMap(map[string]int{
		"planner.compress_frame_cap":      c.Planner.FrameCap,
		"planner.compress_scene_cap":      c.Planner.SceneCap,
		"planner.compress_segment_cap":    c.Planner.SegmentCap,
		"planner.model_concurrency_limit": c.Planner.ModelConcurrencyLimit,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.ReferenceWidth < 16 {
		return errors.New("render.render_reference_width must be at least 16")
	}
	if c.Render.LoudnessTargetLUFS >= 0 {
		return errors.New("render.render_loudness_target_lufs must be negative")
	}
	if c.Render.SegmentParallelism <= 0 {
		return errors.New("render.render_segment_parallelism must be positive")
	}
	if c.Render.ApplyTimeoutFactor <= 0 {
		return errors.New("render.apply_timeout_factor must be positive")
	}
	if c.Render.CaptionFontSize <= 0 {
		return errors.New("render.caption_font_size must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
