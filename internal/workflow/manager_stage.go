package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, stg.name, job, requestID)
	stageLogger := logging.WithContext(stageCtx, workerLogger)
	if aware, ok := stg.handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	job.InitProgress(deriveStageLabel(stg.processingStatus), fmt.Sprintf("%s started", deriveStageLabel(stg.processingStatus)))
	if err := m.store.Update(stageCtx, job); err != nil {
		wrapped := fmt.Errorf("persist processing transition: %w", err)
		stageLogger.Error("failed to persist processing transition", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	m.setLastJob(job)

	return m.executeStage(stageCtx, stageLogger, stg, job)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("source_ref", strings.TrimSpace(job.SourceRef)),
		logging.String("owner_id", strings.TrimSpace(job.OwnerID)),
	)

	if err := stg.handler.Prepare(ctx, job); err != nil {
		return m.resolveStageError(ctx, stageLogger, stg, job, err)
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg.handler, job)
	if execErr != nil {
		return m.resolveStageError(ctx, stageLogger, stg, job, execErr)
	}

	// A cancel may have been flagged while the stage ran; honor it before
	// advancing so no further stage picks the job up.
	if flagged, err := m.store.CancelRequested(ctx, job.ID); err != nil {
		stageLogger.Warn("cancel flag check failed", logging.Error(err))
	} else if flagged {
		m.finalizeCancelled(ctx, stageLogger, job)
		return nil
	}

	if job.Status == stg.processingStatus || job.Status == "" {
		job.Status = stg.doneStatus
	}
	job.LastHeartbeat = nil
	if job.Status == queue.StatusCompleted {
		job.SetProgressComplete(deriveStageLabel(queue.StatusCompleted), "Transcript delivered")
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	stageLogger.Info(
		"stage completed",
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastJob(job)

	if job.Status == queue.StatusCompleted {
		m.finalizeCompleted(ctx, stageLogger, job)
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) resolveStageError(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job, stageErr error) error {
	if errors.Is(stageErr, context.Canceled) {
		stageLogger.Debug("stage interrupted by shutdown")
		return stageErr
	}
	if errors.Is(stageErr, services.ErrCancelled) {
		m.finalizeCancelled(ctx, stageLogger, job)
		return nil
	}
	m.handleStageFailure(ctx, stageLogger, stg, job, stageErr)
	m.setLastError(stageErr)
	return stageErr
}

func (m *Manager) finalizeCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	m.cleanupWorkspace(logger, job, false)
	if m.notifier == nil {
		return
	}
	duration := time.Since(job.CreatedAt)
	if err := m.notifier.NotifyJobCompleted(ctx, job.OwnerID, job.SourceRef, duration); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) finalizeCancelled(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	job.SetCancelled()
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist cancellation", logging.Error(err))
		return
	}
	m.cleanupWorkspace(logger, job, false)
	m.setLastJob(job)
	logger.Info("job cancelled", logging.Int64("job_id", job.ID))
}

func withStageContext(ctx context.Context, stageName string, job *queue.Job, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if job != nil {
		ctx = services.WithJobID(ctx, job.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
