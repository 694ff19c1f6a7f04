package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAcquisition(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateFormatting(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	if strings.TrimSpace(c.Acquisition.GatewayURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/quill/config.toml"
		}
		return fmt.Errorf("acquisition.gateway_url is required. Edit %s (create with 'quill config init')", defaultPath)
	}
	if c.Acquisition.DirectLimitBytes > c.Acquisition.MaxSizeBytes {
		return errors.New("acquisition.direct_limit_bytes must not exceed acquisition.max_size_bytes")
	}
	if c.Acquisition.ChunkBytes > c.Acquisition.MaxSizeBytes {
		return errors.New("acquisition.chunk_bytes must not exceed acquisition.max_size_bytes")
	}
	return ensurePositiveMap(map[string]int{
		"acquisition.retry_attempts":  c.Acquisition.RetryAttempts,
		"acquisition.retry_backoff":   c.Acquisition.RetryBackoff,
		"acquisition.request_timeout": c.Acquisition.RequestTimeout,
	})
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate < 8000 {
		return errors.New("audio.sample_rate must be at least 8000")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		return errors.New("transcription.api_key is required (or set QUILL_TRANSCRIPTION_API_KEY)")
	}
	return ensurePositiveMap(map[string]int{
		"transcription.segment_seconds": c.Transcription.SegmentSeconds,
		"transcription.concurrency":     c.Transcription.Concurrency,
		"transcription.retry_backoff":   c.Transcription.RetryBackoff,
		"transcription.request_timeout": c.Transcription.RequestTimeout,
	})
}

func (c *Config) validateFormatting() error {
	if c.Formatting.Enabled && strings.TrimSpace(c.Formatting.APIKey) == "" {
		return errors.New("formatting.api_key must be set when formatting.enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if strings.TrimSpace(c.Delivery.GatewayURL) == "" {
		return errors.New("delivery.gateway_url is required")
	}
	if c.Delivery.InlineLimitChars <= 0 {
		return errors.New("delivery.inline_limit_chars must be positive")
	}
	if c.Delivery.FileLimitBytes <= 0 {
		return errors.New("delivery.file_limit_bytes must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":             c.Workflow.Workers,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
	}); err != nil {
		return err
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

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
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
