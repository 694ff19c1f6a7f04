package format

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/config"
	"quill/internal/fileutil"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

const (
	formattedFileName = "formatted.txt"
	rejectRatio       = 0.7
	warnLowRatio      = 0.8
	warnHighRatio     = 1.2
	minFormatChars    = 10
)

// TranscriptFormatter produces formatted text from a raw transcript.
type TranscriptFormatter interface {
	FormatTranscript(ctx context.Context, raw string) (string, error)
}

// Formatter runs the optional LLM readability pass. It is best effort
// and never fails a job: any model problem falls back to local sentence
// grouping.
type Formatter struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client TranscriptFormatter
}

// NewFormatter constructs the formatting handler using the HTTP client.
func NewFormatter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Formatter {
	return NewFormatterWithClient(cfg, store, logger, NewClient(cfg))
}

// NewFormatterWithClient allows injecting the model client (used in tests).
func NewFormatterWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client TranscriptFormatter) *Formatter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "formatter"))
	}
	return &Formatter{store: store, cfg: cfg, logger: stageLogger, client: client}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (f *Formatter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

func (f *Formatter) Prepare(ctx context.Context, job *queue.Job) error {
	transcript := strings.TrimSpace(job.TranscriptFile)
	if transcript == "" {
		return services.Wrap(services.ErrValidation, "formatting", "validate input", "Job has no transcript file", nil)
	}
	if _, err := os.Stat(transcript); err != nil {
		return services.Wrap(services.ErrValidation, "formatting", "validate input", "Transcript file is missing", err)
	}
	job.SetProgress("Formatting", "Improving transcript readability", 0)
	return nil
}

func (f *Formatter) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)

	rawBytes, err := os.ReadFile(job.TranscriptFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, "formatting", "read transcript", "Transcript file is unreadable", err)
	}
	raw := strings.TrimSpace(string(rawBytes))

	formatted := f.formatText(ctx, logger, raw)
	dest := filepath.Join(job.WorkspaceDir, formattedFileName)
	if err := fileutil.WriteFileAtomic(dest, []byte(formatted), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "formatting", "write formatted text", "Failed to write formatted transcript", err)
	}

	job.FormattedFile = dest
	job.SetProgressComplete("Formatted", "Transcript formatted")
	return nil
}

// formatText returns the best available rendering of the raw transcript.
// Model output that shrinks the text too far is rejected in favor of the
// local fallback.
func (f *Formatter) formatText(ctx context.Context, logger *slog.Logger, raw string) string {
	if !f.cfg.Formatting.Enabled {
		return raw
	}
	if len(raw) < minFormatChars {
		return raw
	}
	if f.client == nil {
		return GroupSentences(raw)
	}

	formatted, err := f.client.FormatTranscript(ctx, raw)
	if err != nil {
		logger.Warn("model formatting failed, using local fallback", logging.Error(err))
		return GroupSentences(raw)
	}

	ratio := float64(len(formatted)) / float64(len(raw))
	switch {
	case ratio < rejectRatio:
		logger.Warn(
			"model shortened the transcript too much, using local fallback",
			logging.Float64("length_ratio", ratio),
		)
		return GroupSentences(raw)
	case ratio < warnLowRatio || ratio > warnHighRatio:
		logger.Warn(
			"model changed transcript length noticeably",
			logging.Float64("length_ratio", ratio),
		)
	}
	return formatted
}

// HealthCheck reports the formatting configuration; a disabled formatter
// is healthy by definition.
func (f *Formatter) HealthCheck(ctx context.Context) stage.Health {
	const name = "formatter"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if !f.cfg.Formatting.Enabled {
		return stage.Healthy(name)
	}
	if strings.TrimSpace(f.cfg.Formatting.APIKey) == "" {
		return stage.Unhealthy(name, "formatting api key not configured")
	}
	baseURL := strings.TrimSpace(f.cfg.Formatting.BaseURL)
	if baseURL == "" {
		return stage.Unhealthy(name, "formatting backend not configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("invalid formatting url: %v", err))
	}
	return stage.Healthy(name)
}
