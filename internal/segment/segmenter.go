package segment

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
	"quill/internal/media"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// cutSegment is swappable in tests.
var cutSegment = media.CutSegment

// Segmenter splits extracted audio into transcription-sized windows.
type Segmenter struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewSegmenter constructs the segmentation handler.
func NewSegmenter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Segmenter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "segmenter"))
	}
	return &Segmenter{store: store, cfg: cfg, logger: stageLogger}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (s *Segmenter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Segmenter) Prepare(ctx context.Context, job *queue.Job) error {
	audio := strings.TrimSpace(job.AudioFile)
	if audio == "" {
		return services.Wrap(services.ErrValidation, "segmentation", "validate input", "Job has no extracted audio file", nil)
	}
	if _, err := os.Stat(audio); err != nil {
		return services.Wrap(services.ErrValidation, "segmentation", "validate input", "Extracted audio file is missing", err)
	}
	if job.DurationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "segmentation", "validate input", "Job has no audio duration", nil)
	}
	job.SetProgress("Segmenting", "Planning audio segments", 0)
	return nil
}

func (s *Segmenter) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)

	segments, err := Plan(job.DurationSeconds, s.cfg.Transcription.SegmentSeconds, s.cfg.Audio.SampleRate)
	if err != nil {
		return services.Wrap(services.ErrValidation, "segmentation", "plan", "Could not plan audio segments", err)
	}

	if len(segments) == 1 {
		// Short recordings go to the speech service whole; no cutting needed.
		segments[0].Path = job.AudioFile
	} else {
		segmentDir := filepath.Join(job.WorkspaceDir, "segments")
		if err := os.MkdirAll(segmentDir, 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, "segmentation", "ensure segment dir", "Failed to create segment directory", err)
		}
		for i := range segments {
			if flagged, err := s.store.CancelRequested(ctx, job.ID); err == nil && flagged {
				return services.ErrCancelled
			}
			dest := filepath.Join(segmentDir, fmt.Sprintf("segment-%04d.wav", segments[i].Index))
			if err := cutSegment(ctx, s.cfg.FFmpegBinary(), job.AudioFile, dest, segments[i].OffsetSeconds(), segments[i].DurationSeconds()); err != nil {
				return services.Wrap(services.ErrExternalTool, "segmentation", "ffmpeg cut", "Failed to cut audio segment", err)
			}
			segments[i].Path = dest
			job.SetProgress("Segmenting", fmt.Sprintf("Cut segment %d of %d", i+1, len(segments)), float64(i+1)/float64(len(segments))*100)
			if err := s.store.Update(ctx, job); err != nil {
				logger.Warn("failed to persist segmentation progress", logging.Error(err))
			}
		}
	}

	encoded, err := EncodePlan(segments)
	if err != nil {
		return services.Wrap(services.ErrValidation, "segmentation", "encode plan", "Failed to persist segment plan", err)
	}
	job.SegmentPlanJSON = encoded
	job.SetProgressComplete("Segmented", fmt.Sprintf("%d segment(s) planned", len(segments)))

	logger.Info(
		"segmentation completed",
		logging.Int("segments", len(segments)),
		logging.Float64("duration_seconds", job.DurationSeconds),
	)
	return nil
}

// HealthCheck verifies ffmpeg is available for cutting.
func (s *Segmenter) HealthCheck(ctx context.Context) stage.Health {
	const name = "segmenter"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if s.cfg.Transcription.SegmentSeconds <= 0 {
		return stage.Unhealthy(name, "segment length not configured")
	}
	binary := s.cfg.FFmpegBinary()
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(name)
}
