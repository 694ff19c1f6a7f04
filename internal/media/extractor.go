package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/media/ffprobe"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// probeAudio is swappable in tests.
var probeAudio = ffprobe.Inspect

// extractAudio is swappable in tests.
var extractAudio = ExtractAudio

// Extractor converts acquired media containers into mono PCM WAV audio.
type Extractor struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewExtractor constructs the extraction handler.
func NewExtractor(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Extractor {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "extractor"))
	}
	return &Extractor{store: store, cfg: cfg, logger: stageLogger}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Extractor) Prepare(ctx context.Context, job *queue.Job) error {
	source := strings.TrimSpace(job.MediaFile)
	if source == "" {
		return services.Wrap(services.ErrValidation, "extraction", "validate input", "Job has no acquired media file", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrValidation, "extraction", "validate input", "Acquired media file is missing", err)
	}
	job.SetProgress("Extracting", "Extracting audio track", 0)
	return nil
}

func (e *Extractor) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, e.logger)

	if flagged, err := e.store.CancelRequested(ctx, job.ID); err == nil && flagged {
		return services.ErrCancelled
	}

	dest := filepath.Join(job.WorkspaceDir, "audio.wav")
	sampleRate := e.cfg.Audio.SampleRate

	logger.Info(
		"extracting audio",
		logging.String("media_file", job.MediaFile),
		logging.String("audio_file", dest),
		logging.Int("sample_rate", sampleRate),
	)

	if err := extractAudio(ctx, e.cfg.FFmpegBinary(), job.MediaFile, dest, sampleRate); err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"extraction",
			"ffmpeg extract",
			"Audio extraction failed; the source may not contain a decodable audio track",
			err,
		)
	}

	probe, err := probeAudio(ctx, e.cfg.FFprobeBinary(), dest)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "extraction", "ffprobe audio", "Failed to inspect extracted audio", err)
	}
	if probe.AudioStreamCount() == 0 {
		return services.Wrap(services.ErrUnsupportedMedia, "extraction", "validate audio", "Extracted file contains no audio stream", nil)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return services.Wrap(services.ErrUnsupportedMedia, "extraction", "validate duration", "Extracted audio duration could not be determined", nil)
	}

	// The container is no longer needed; free the space before long audio
	// processing begins.
	if err := os.Remove(job.MediaFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove source container", logging.String("media_file", job.MediaFile), logging.Error(err))
	}

	job.MediaFile = ""
	job.AudioFile = dest
	job.DurationSeconds = duration
	job.SetProgressComplete("Extracted", fmt.Sprintf("Audio extracted (%.0fs)", duration))

	logger.Info(
		"extraction completed",
		logging.String("audio_file", dest),
		logging.Float64("duration_seconds", duration),
	)
	return nil
}

// HealthCheck verifies the ffmpeg toolchain is available.
func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	const name = "extractor"
	if e.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	for _, binary := range []string{e.cfg.FFmpegBinary(), e.cfg.FFprobeBinary()} {
		if strings.TrimSpace(binary) == "" {
			return stage.Unhealthy(name, "ffmpeg toolchain not configured")
		}
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
		}
	}
	return stage.Healthy(name)
}
