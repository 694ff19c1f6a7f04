package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAcquisition()
	c.normalizeAudio()
	c.normalizeTranscription()
	c.normalizeFormatting()
	c.normalizeDelivery()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeAcquisition() {
	c.Acquisition.GatewayURL = strings.TrimRight(strings.TrimSpace(c.Acquisition.GatewayURL), "/")
	c.Acquisition.AuthToken = strings.TrimSpace(c.Acquisition.AuthToken)
	if c.Acquisition.AuthToken == "" {
		if value, ok := os.LookupEnv("QUILL_GATEWAY_TOKEN"); ok {
			c.Acquisition.AuthToken = strings.TrimSpace(value)
		}
	}
	if c.Acquisition.DirectLimitBytes <= 0 {
		c.Acquisition.DirectLimitBytes = defaultDirectLimitBytes
	}
	if c.Acquisition.MaxSizeBytes <= 0 {
		c.Acquisition.MaxSizeBytes = defaultMaxSizeBytes
	}
	if c.Acquisition.ChunkBytes <= 0 {
		c.Acquisition.ChunkBytes = defaultChunkBytes
	}
	if c.Acquisition.RetryAttempts <= 0 {
		c.Acquisition.RetryAttempts = defaultAcquireRetries
	}
	if c.Acquisition.RetryBackoff <= 0 {
		c.Acquisition.RetryBackoff = defaultAcquireBackoff
	}
	if c.Acquisition.RequestTimeout <= 0 {
		c.Acquisition.RequestTimeout = defaultAcquireTimeout
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscribeBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscribeModel
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("QUILL_TRANSCRIPTION_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("DEEPINFRA_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Transcription.SegmentSeconds <= 0 {
		c.Transcription.SegmentSeconds = defaultSegmentSeconds
	}
	if c.Transcription.Concurrency <= 0 {
		c.Transcription.Concurrency = defaultConcurrency
	}
	if c.Transcription.RetryAttempts < 0 {
		c.Transcription.RetryAttempts = defaultTranscribeRetries
	}
	if c.Transcription.RetryBackoff <= 0 {
		c.Transcription.RetryBackoff = defaultTranscribeBackoff
	}
	if c.Transcription.RequestTimeout <= 0 {
		c.Transcription.RequestTimeout = defaultTranscribeTimeout
	}
}

func (c *Config) normalizeFormatting() {
	c.Formatting.BaseURL = strings.TrimSpace(c.Formatting.BaseURL)
	if c.Formatting.BaseURL == "" {
		c.Formatting.BaseURL = defaultFormattingBaseURL
	}
	c.Formatting.Model = strings.TrimSpace(c.Formatting.Model)
	if c.Formatting.Model == "" {
		c.Formatting.Model = defaultFormattingModel
	}
	c.Formatting.Referer = strings.TrimSpace(c.Formatting.Referer)
	if c.Formatting.Referer == "" {
		c.Formatting.Referer = defaultFormattingReferer
	}
	c.Formatting.Title = strings.TrimSpace(c.Formatting.Title)
	if c.Formatting.Title == "" {
		c.Formatting.Title = defaultFormattingTitle
	}
	if c.Formatting.TimeoutSeconds <= 0 {
		c.Formatting.TimeoutSeconds = defaultFormattingTimeout
	}
	c.Formatting.APIKey = strings.TrimSpace(c.Formatting.APIKey)
	if c.Formatting.APIKey == "" {
		if value, ok := os.LookupEnv("QUILL_FORMATTING_API_KEY"); ok {
			c.Formatting.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Formatting.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDelivery() {
	c.Delivery.GatewayURL = strings.TrimRight(strings.TrimSpace(c.Delivery.GatewayURL), "/")
	c.Delivery.AuthToken = strings.TrimSpace(c.Delivery.AuthToken)
	if c.Delivery.AuthToken == "" {
		c.Delivery.AuthToken = c.Acquisition.AuthToken
	}
	c.Delivery.DocsURL = strings.TrimRight(strings.TrimSpace(c.Delivery.DocsURL), "/")
	c.Delivery.DocsToken = strings.TrimSpace(c.Delivery.DocsToken)
	if c.Delivery.DocsToken == "" {
		if value, ok := os.LookupEnv("QUILL_DOCS_TOKEN"); ok {
			c.Delivery.DocsToken = strings.TrimSpace(value)
		}
	}
	if c.Delivery.InlineLimitChars <= 0 {
		c.Delivery.InlineLimitChars = defaultInlineLimitChars
	}
	if c.Delivery.FileLimitBytes <= 0 {
		c.Delivery.FileLimitBytes = defaultFileLimitBytes
	}
	if c.Delivery.RequestTimeout <= 0 {
		c.Delivery.RequestTimeout = defaultDeliveryTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
