package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/logging"
	"quill/internal/queue"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job, stageErr error) {
	message := classifyStageFailure(stg.name, stageErr)
	job.SetFailed(message)

	stageLogger.Error(
		"stage failed",
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("daemon shutting down, could not update stage failure")
		} else {
			stageLogger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastJob(job)

	// Delivery failures happen after a transcript exists; keep the text so the
	// result is not lost with the workspace.
	retainTranscripts := stg.processingStatus == queue.StatusDelivering
	m.cleanupWorkspace(stageLogger, job, retainTranscripts)

	if m.notifier != nil && stageErr != nil {
		if err := m.notifier.NotifyJobFailed(ctx, job.OwnerID, job.SourceRef, message); err != nil {
			if !errors.Is(err, context.Canceled) {
				stageLogger.Debug("failure notification failed", logging.Error(err))
			}
		}
	}
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		if stageName != "" {
			return fmt.Sprintf("%s failed without error detail", stageName)
		}
		return "workflow failed without error detail"
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	return message
}

// cleanupWorkspace removes a terminal job's working files. When
// retainTranscripts is set, plain-text outputs survive so a failed delivery
// can be recovered manually. Removal is idempotent.
func (m *Manager) cleanupWorkspace(logger *slog.Logger, job *queue.Job, retainTranscripts bool) {
	dir := strings.TrimSpace(job.WorkspaceDir)
	if dir == "" {
		return
	}

	if !retainTranscripts {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("workspace cleanup failed", logging.String("workspace", dir), logging.Error(err))
		}
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("workspace cleanup failed", logging.String("workspace", dir), logging.Error(err))
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			logger.Warn("workspace cleanup failed", logging.String("path", target), logging.Error(err))
		}
	}
}
