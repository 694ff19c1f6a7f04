package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quill/internal/logging"
	"quill/internal/queue"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	workers := m.workerCount()
	m.wg.Add(workers)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("reset of interrupted jobs failed; stuck jobs may remain", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("rolled back interrupted jobs", logging.Int64("count", reset))
	}

	for worker := 0; worker < workers; worker++ {
		go m.runWorker(runCtx, worker)
	}

	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()

	logger := m.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(
		logging.String("component", "workflow-worker"),
		logging.Int("worker", worker),
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil {
			logger.Warn("reclaim stale processing failed; stuck jobs may remain", logging.Error(err))
		}

		m.finalizeFlaggedJobs(ctx, logger)

		job, stg, err := m.claimNext(ctx)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, stg, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// finalizeFlaggedJobs cancels jobs whose cancel request arrived while they
// sat between stages. Claim never picks flagged rows up, so without this
// sweep they would stay non-terminal and keep their (owner, source) key
// blocked for resubmission.
func (m *Manager) finalizeFlaggedJobs(ctx context.Context, logger *slog.Logger) {
	for {
		job, err := m.store.ClaimCancelled(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn("cancel sweep failed", logging.Error(err))
			}
			return
		}
		if job == nil {
			return
		}
		m.finalizeCancelled(ctx, logger, job)
	}
}

// claimNext scans stages from the end of the pipeline backwards so in-flight
// jobs drain before new submissions start consuming workers.
func (m *Manager) claimNext(ctx context.Context) (*queue.Job, pipelineStage, error) {
	m.mu.RLock()
	stages := m.stages
	m.mu.RUnlock()

	for i := len(stages) - 1; i >= 0; i-- {
		stg := stages[i]
		job, err := m.store.Claim(ctx, stg.startStatus, stg.processingStatus)
		if err != nil {
			return nil, pipelineStage{}, fmt.Errorf("claim for %s: %w", stg.name, err)
		}
		if job != nil {
			return job, stg, nil
		}
	}
	return nil, pipelineStage{}, nil
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next job", logging.Error(err))
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
