package config

const (
	defaultBlobRoot = "~/.local/share/storycut/blobs"
	defaultLogDir   = "~/.local/share/storycut/logs"
	defaultDBPath   = "~/.local/share/storycut/registry.db"
	defaultAPIBind  = "127.0.0.1:7989"

	defaultWorkerPoolSize       = 4
	defaultMaxAttempts          = 3
	defaultMaxAttemptsPlanStory = 2
	defaultRetryBackoffBase     = 60
	defaultRetryJitter          = 10
	defaultQueuePollInterval    = 1
	defaultPreconditionDelay    = 5
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultCancelGrace          = 10

	defaultProbeTimeoutSeconds     = 30
	defaultMinSilenceSeconds       = 0.6
	defaultFrameSampleSeconds      = 1.0
	defaultSceneThreshold          = 0.4
	defaultTranscribeTimeoutFactor = 3.0
	defaultFrameBatchSize          = 8

	defaultClipMinSeconds = 15.0
	defaultClipMaxSeconds = 60.0
	defaultClipCount      = 5

	defaultPlanTemperature       = 0.3
	defaultCoverageTolerancePct  = 10.0
	defaultFrameCap              = 50
	defaultSceneCap              = 20
	defaultSegmentCap            = 100
	defaultModelConcurrency      = 2
	defaultRenderReferenceWidth  = 1080
	defaultLoudnessTargetLUFS    = -16.0
	defaultSegmentParallelism    = 2
	defaultApplyTimeoutFactor    = 5.0
	defaultCaptionFont           = "Arial"
	defaultCaptionFontSize       = 24
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMVisionModel        = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/storycut/storycut"
	defaultLLMTitle              = "Storycut Planner"
	defaultLLMTimeoutSeconds     = 120
	defaultWhisperBinary         = "whisperx"
	defaultWhisperModel          = "small"
	defaultNtfyURL               = "https://ntfy.sh"
	defaultNotifyTimeoutSeconds  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

var defaultHookKeywords = []string{
	"secret", "amazing", "incredible", "never", "always",
	"mistake", "warning", "revealed", "finally", "shocking",
	"how to", "why", "truth", "best", "worst",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BlobRoot: defaultBlobRoot,
			LogDir:   defaultLogDir,
			DBPath:   defaultDBPath,
			APIBind:  defaultAPIBind,
		},
		Workflow: Workflow{
			WorkerPoolSize:           defaultWorkerPoolSize,
			MaxAttemptsDefault:       defaultMaxAttempts,
			MaxAttemptsPlanStory:     defaultMaxAttemptsPlanStory,
			RetryBackoffBaseSeconds:  defaultRetryBackoffBase,
			RetryJitterSeconds:       defaultRetryJitter,
			QueuePollIntervalSeconds: defaultQueuePollInterval,
			PreconditionDelaySeconds: defaultPreconditionDelay,
			HeartbeatInterval:        defaultHeartbeatInterval,
			HeartbeatTimeout:         defaultHeartbeatTimeout,
			CancelGraceSeconds:       defaultCancelGrace,
		},
		Enrich: Enrich{
			ProbeTimeoutSeconds:     defaultProbeTimeoutSeconds,
			MinSilenceSeconds:       defaultMinSilenceSeconds,
			FrameSampleSeconds:      defaultFrameSampleSeconds,
			SceneThreshold:          defaultSceneThreshold,
			TranscribeTimeoutFactor: defaultTranscribeTimeoutFactor,
			FrameBatchSize:          defaultFrameBatchSize,
		},
		Clips: Clips{
			MinSeconds:    defaultClipMinSeconds,
			MaxSeconds:    defaultClipMaxSeconds,
			MaxCandidates: defaultClipCount,
			HookKeywords:  append([]string(nil), defaultHookKeywords...),
		},
		Planner: Planner{
			Temperature:           defaultPlanTemperature,
			CoverageTolerancePct:  defaultCoverageTolerancePct,
			FrameCap:              defaultFrameCap,
			SceneCap:              defaultSceneCap,
			SegmentCap:            defaultSegmentCap,
			ModelConcurrencyLimit: defaultModelConcurrency,
		},
		Render: Render{
			ReferenceWidth:     defaultRenderReferenceWidth,
			LoudnessTargetLUFS: defaultLoudnessTargetLUFS,
			SegmentParallelism: defaultSegmentParallelism,
			ApplyTimeoutFactor: defaultApplyTimeoutFactor,
			CaptionFont:        defaultCaptionFont,
			CaptionFontSize:    defaultCaptionFontSize,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			VisionModel:    defaultLLMVisionModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Whisper: Whisper{
			Binary: defaultWhisperBinary,
			Model:  defaultWhisperModel,
		},
		Notify: Notify{
			NtfyURL:        defaultNtfyURL,
			TimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
