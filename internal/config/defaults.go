package config

const (
	defaultConfigPath           = "~/.config/reelsight/config.toml"
	defaultDataDir              = "~/.local/share/reelsight"
	defaultLogDir               = "~/.local/share/reelsight/logs"
	defaultAPIBind              = "127.0.0.1:7491"
	defaultWorkers              = 8
	defaultUnitRetries          = 2
	defaultRetryBaseDelayMS     = 500
	defaultRetryMaxDelayMS      = 8000
	defaultCleanupDelaySeconds  = 3600
	defaultFrameIntervalSeconds = 5
	defaultMaxFrames            = 60
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultFrameWidth           = 640
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMReferer           = "https://github.com/reelsight/reelsight"
	defaultLLMTitle             = "reelsight"
	defaultLLMTimeoutSeconds    = 60
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Stage names in pipeline order.
const (
	StageExtraction = "extraction"
	StageInference  = "inference"
	StageEnhance    = "enhance"
	StageReport     = "report"
)

// DefaultStageWeights returns the standard weight table.
func DefaultStageWeights() map[string]int {
	return map[string]int{
		StageExtraction: 25,
		StageInference:  40,
		StageEnhance:    25,
		StageReport:     10,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			Workers:              defaultWorkers,
			UnitRetries:          defaultUnitRetries,
			RetryBaseDelayMS:     defaultRetryBaseDelayMS,
			RetryMaxDelayMS:      defaultRetryMaxDelayMS,
			CleanupDelaySeconds:  defaultCleanupDelaySeconds,
			FrameIntervalSeconds: defaultFrameIntervalSeconds,
			MaxFrames:            defaultMaxFrames,
			Weights:              DefaultStageWeights(),
		},
		Media: Media{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			FrameWidth:    defaultFrameWidth,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
