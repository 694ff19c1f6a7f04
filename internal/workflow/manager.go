package workflow

import (
	"log/slog"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/notifications"
	"quill/internal/queue"
	"quill/internal/stage"
)

// Manager coordinates queue processing using a pool of interchangeable workers.
// Every worker can run any pipeline stage; jobs are claimed atomically so each
// stage execution has exactly one owner.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service

	heartbeat *HeartbeatMonitor

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage

	mu      sync.RWMutex
	running bool
	cancel  func()
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Acquirer    stage.Handler
	Extractor   stage.Handler
	Segmenter   stage.Handler
	Transcriber stage.Handler
	Formatter   stage.Handler
	Deliverer   stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage

	if set.Acquirer != nil {
		stages = append(stages, pipelineStage{
			name:             "acquisition",
			handler:          set.Acquirer,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusAcquiring,
			doneStatus:       queue.StatusAcquired,
		})
	}
	if set.Extractor != nil {
		stages = append(stages, pipelineStage{
			name:             "extraction",
			handler:          set.Extractor,
			startStatus:      queue.StatusAcquired,
			processingStatus: queue.StatusExtracting,
			doneStatus:       queue.StatusExtracted,
		})
	}
	if set.Segmenter != nil {
		stages = append(stages, pipelineStage{
			name:             "segmentation",
			handler:          set.Segmenter,
			startStatus:      queue.StatusExtracted,
			processingStatus: queue.StatusSegmenting,
			doneStatus:       queue.StatusSegmented,
		})
	}
	if set.Transcriber != nil {
		stages = append(stages, pipelineStage{
			name:             "transcription",
			handler:          set.Transcriber,
			startStatus:      queue.StatusSegmented,
			processingStatus: queue.StatusTranscribing,
			doneStatus:       queue.StatusTranscribed,
		})
	}
	if set.Formatter != nil {
		stages = append(stages, pipelineStage{
			name:             "formatting",
			handler:          set.Formatter,
			startStatus:      queue.StatusTranscribed,
			processingStatus: queue.StatusFormatting,
			doneStatus:       queue.StatusFormatted,
		})
	}
	if set.Deliverer != nil {
		stages = append(stages, pipelineStage{
			name:             "delivery",
			handler:          set.Deliverer,
			startStatus:      queue.StatusFormatted,
			processingStatus: queue.StatusDelivering,
			doneStatus:       queue.StatusCompleted,
		})
	}

	byStart := make(map[queue.Status]pipelineStage, len(stages))
	for _, stg := range stages {
		byStart[stg.startStatus] = stg
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = byStart
	m.mu.Unlock()
}

func (m *Manager) workerCount() int {
	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	return workers
}
