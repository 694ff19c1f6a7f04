package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/fileutil"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/segment"
	"quill/internal/services"
	"quill/internal/stage"
)

const (
	defaultConcurrency  = 3
	defaultRetryBackoff = 2 * time.Second
	maxRetryBackoff     = 60 * time.Second
	transcriptFileName  = "transcript.txt"
)

// SegmentTranscriber converts one audio file into text.
type SegmentTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Transcriber fans segment audio out to the speech service and assembles
// the raw transcript in segment order.
type Transcriber struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client SegmentTranscriber
	sleep  func(context.Context, time.Duration) error
}

// NewTranscriber constructs the transcription handler using the HTTP client.
func NewTranscriber(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcriber {
	return NewTranscriberWithClient(cfg, store, logger, NewClient(cfg))
}

// NewTranscriberWithClient allows injecting the segment client (used in tests).
func NewTranscriberWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client SegmentTranscriber) *Transcriber {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "transcriber"))
	}
	return &Transcriber{store: store, cfg: cfg, logger: stageLogger, client: client, sleep: sleepContext}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (t *Transcriber) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

func (t *Transcriber) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.SegmentPlanJSON) == "" {
		return services.Wrap(services.ErrValidation, "transcription", "validate input", "Job has no segment plan", nil)
	}
	segments, err := segment.DecodePlan(job.SegmentPlanJSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "validate input", "Segment plan is unreadable", err)
	}
	for _, seg := range segments {
		if _, err := os.Stat(seg.Path); err != nil {
			return services.Wrap(services.ErrValidation, "transcription", "validate input",
				fmt.Sprintf("Segment %d audio is missing", seg.Index), err)
		}
	}
	job.SetProgress("Transcribing", fmt.Sprintf("Transcribing %d segment(s)", len(segments)), 0)
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	segments, err := segment.DecodePlan(job.SegmentPlanJSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "decode plan", "Segment plan is unreadable", err)
	}

	texts, err := t.transcribeAll(ctx, logger, job, segments)
	if err != nil {
		return err
	}

	transcript := assemble(texts)
	dest := filepath.Join(job.WorkspaceDir, transcriptFileName)
	if err := fileutil.WriteFileAtomic(dest, []byte(transcript), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "transcription", "write transcript", "Failed to write transcript file", err)
	}

	job.TranscriptFile = dest
	job.SetProgressComplete("Transcribed", fmt.Sprintf("Transcribed %d segment(s)", len(segments)))
	logger.Info(
		"transcription completed",
		logging.Int("segments", len(segments)),
		logging.Int("transcript_chars", len(transcript)),
	)
	return nil
}

// transcribeAll runs segments under a bounded semaphore. The first failure
// cancels the remaining work; results keep their segment order regardless of
// completion order.
func (t *Transcriber) transcribeAll(ctx context.Context, logger *slog.Logger, job *queue.Job, segments []segment.Segment) ([]string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	texts := make([]string, len(segments))
	sem := make(chan struct{}, t.concurrency())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for i := range segments {
		if flagged, err := t.store.CancelRequested(ctx, job.ID); err == nil && flagged {
			fail(services.ErrCancelled)
			break
		}
		if runCtx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(idx int, seg segment.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := t.transcribeWithRetry(runCtx, seg.Path)
			if err != nil {
				fail(err)
				return
			}

			mu.Lock()
			texts[idx] = text
			done++
			completed := done
			job.SetProgress("Transcribing", fmt.Sprintf("Transcribed %d of %d segments", completed, len(segments)), float64(completed)/float64(len(segments))*100)
			if err := t.store.Update(ctx, job); err != nil {
				logger.Warn("failed to persist transcription progress", logging.Error(err))
			}
			mu.Unlock()

			logger.Info(
				"segment transcribed",
				logging.Int("segment", seg.Index),
				logging.Int("completed", completed),
				logging.Int("total", len(segments)),
			)
		}(i, segments[i])
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

func (t *Transcriber) transcribeWithRetry(ctx context.Context, audioPath string) (string, error) {
	attempts := t.cfg.Transcription.RetryAttempts + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, retryBackoff(t.cfg.Transcription.RetryBackoff, attempt-1)); err != nil {
				return "", err
			}
		}
		text, err := t.client.Transcribe(ctx, audioPath)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !services.IsTransient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("segment failed after %d attempts: %w", attempts, lastErr)
}

func (t *Transcriber) concurrency() int {
	if t.cfg.Transcription.Concurrency > 0 {
		return t.cfg.Transcription.Concurrency
	}
	return defaultConcurrency
}

// HealthCheck verifies the speech backend configuration.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(t.cfg.Transcription.BaseURL) == "" {
		return stage.Unhealthy(name, "transcription backend not configured")
	}
	if strings.TrimSpace(t.cfg.Transcription.APIKey) == "" {
		return stage.Unhealthy(name, "transcription api key not configured")
	}
	if t.client == nil {
		return stage.Unhealthy(name, "transcription client unavailable")
	}
	return stage.Healthy(name)
}

// assemble joins segment texts in plan order with single spaces.
func assemble(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func retryBackoff(baseSeconds, attempt int) time.Duration {
	base := time.Duration(baseSeconds) * time.Second
	if base <= 0 {
		base = defaultRetryBackoff
	}
	delay := base << attempt
	if delay > maxRetryBackoff || delay <= 0 {
		delay = maxRetryBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
