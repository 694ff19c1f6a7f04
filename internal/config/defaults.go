package config

const (
	defaultDataDir      = "~/.local/share/quill"
	defaultWorkspaceDir = "~/.local/share/quill/workspaces"
	defaultLogDir       = "~/.local/share/quill/logs"
	defaultAPIBind      = "127.0.0.1:7517"

	defaultDirectLimitBytes  = int64(20) * 1024 * 1024
	defaultMaxSizeBytes      = int64(2000) * 1024 * 1024
	defaultChunkBytes        = int64(2) * 1024 * 1024
	defaultAcquireRetries    = 3
	defaultAcquireBackoff    = 2
	defaultAcquireTimeout    = 120
	defaultSampleRate        = 16000
	defaultSegmentSeconds    = 1800
	defaultConcurrency       = 3
	defaultTranscribeRetries = 3
	defaultTranscribeBackoff = 2
	defaultTranscribeTimeout = 300
	defaultTranscribeBaseURL = "https://api.deepinfra.com/v1/inference/openai/whisper-large-v3-turbo"
	defaultTranscribeModel   = "openai/whisper-large-v3-turbo"
	defaultFormattingBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultFormattingModel   = "google/gemini-3-flash-preview"
	defaultFormattingReferer = "https://github.com/quill"
	defaultFormattingTitle   = "Quill Transcript Formatter"
	defaultFormattingTimeout = 180
	defaultInlineLimitChars  = 4096
	defaultFileLimitBytes    = int64(50) * 1024 * 1024
	defaultDeliveryTimeout   = 60
	defaultNotifyTimeout     = 10
	defaultWorkers           = 2
	defaultQueuePollInterval = 5
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Acquisition: Acquisition{
			DirectLimitBytes: defaultDirectLimitBytes,
			MaxSizeBytes:     defaultMaxSizeBytes,
			ChunkBytes:       defaultChunkBytes,
			RetryAttempts:    defaultAcquireRetries,
			RetryBackoff:     defaultAcquireBackoff,
			RequestTimeout:   defaultAcquireTimeout,
		},
		Audio: Audio{
			SampleRate: defaultSampleRate,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscribeBaseURL,
			Model:          defaultTranscribeModel,
			SegmentSeconds: defaultSegmentSeconds,
			Concurrency:    defaultConcurrency,
			RetryAttempts:  defaultTranscribeRetries,
			RetryBackoff:   defaultTranscribeBackoff,
			RequestTimeout: defaultTranscribeTimeout,
		},
		Formatting: Formatting{
			Enabled:        true,
			BaseURL:        defaultFormattingBaseURL,
			Model:          defaultFormattingModel,
			Referer:        defaultFormattingReferer,
			Title:          defaultFormattingTitle,
			TimeoutSeconds: defaultFormattingTimeout,
		},
		Delivery: Delivery{
			InlineLimitChars: defaultInlineLimitChars,
			FileLimitBytes:   defaultFileLimitBytes,
			RequestTimeout:   defaultDeliveryTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Daemon:         true,
		},
		Workflow: Workflow{
			Workers:           defaultWorkers,
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
