package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
	"quill/internal/testsupport"
	"quill/internal/workflow"
)

type stubStage struct {
	name    string
	prepare func(context.Context, *queue.Job) error
	execute func(context.Context, *queue.Job) error
}

func (s *stubStage) Prepare(ctx context.Context, job *queue.Job) error {
	if s.prepare != nil {
		return s.prepare(ctx, job)
	}
	return nil
}

func (s *stubStage) Execute(ctx context.Context, job *queue.Job) error {
	if s.execute != nil {
		return s.execute(ctx, job)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (r *recordingNotifier) NotifyJobCompleted(_ context.Context, _, sourceRef string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, sourceRef)
	return nil
}

func (r *recordingNotifier) NotifyJobFailed(_ context.Context, _, sourceRef, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, sourceRef)
	return nil
}

func (r *recordingNotifier) NotifyDaemonStarted(context.Context, string) error { return nil }
func (r *recordingNotifier) NotifyDaemonStopped(context.Context) error         { return nil }
func (r *recordingNotifier) NotifyError(context.Context, error, string) error  { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error            { return nil }

func passthroughStages(onAcquire func(context.Context, *queue.Job) error) workflow.StageSet {
	return workflow.StageSet{
		Acquirer:    &stubStage{name: "acquisition", execute: onAcquire},
		Extractor:   &stubStage{name: "extraction"},
		Segmenter:   &stubStage{name: "segmentation"},
		Transcriber: &stubStage{name: "transcription"},
		Formatter:   &stubStage{name: "formatting"},
		Deliverer:   &stubStage{name: "delivery"},
	}
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, notifier *recordingNotifier) *workflow.Manager {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	cfg.Workflow.QueuePollInterval = 1
	return workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := store.GetByID(context.Background(), id)
	t.Fatalf("job %d never reached %s, last state %+v", id, want, job)
	return nil
}

func TestManagerRunsJobThroughAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	workspace := t.TempDir()
	manager := newTestManager(t, cfg, store, notifier)
	manager.ConfigureStages(passthroughStages(func(_ context.Context, job *queue.Job) error {
		job.WorkspaceDir = workspace
		testsupport.WriteFile(t, filepath.Join(workspace, "media.bin"), 64)
		return nil
	}))

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 1024)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, job.ID, queue.StatusCompleted)
	if final.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", final.ProgressPercent)
	}

	if _, err := os.Stat(workspace); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace should be removed after completion, stat err = %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.completed) != 1 || notifier.completed[0] != "file:abc" {
		t.Fatalf("unexpected completion notifications: %v", notifier.completed)
	}
}

func TestManagerMarksJobFailedOnStageError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	manager := newTestManager(t, cfg, store, notifier)
	stages := passthroughStages(nil)
	stages.Transcriber = &stubStage{name: "transcription", execute: func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrExternalTool, "transcription", "segment", "speech service rejected audio", nil)
	}}
	manager.ConfigureStages(stages)

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 1024)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if final.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 {
		t.Fatalf("expected failure notification, got %v", notifier.failed)
	}
}

func TestManagerHonorsCancelBetweenStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	manager := newTestManager(t, cfg, store, notifier)
	stages := passthroughStages(nil)
	stages.Extractor = &stubStage{name: "extraction", execute: func(ctx context.Context, job *queue.Job) error {
		// Flag the cancel while the stage is running; the manager should
		// finalize the job instead of advancing it.
		if _, err := store.RequestCancel(ctx, job.ID); err != nil {
			return err
		}
		return nil
	}}
	manager.ConfigureStages(stages)

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 1024)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, job.ID, queue.StatusCancelled)
	if final.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.completed) != 0 && len(notifier.failed) != 0 {
		t.Fatal("cancelled job should not notify completion or failure")
	}
}

func TestManagerFinalizesCancelFlaggedBetweenStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	manager := newTestManager(t, cfg, store, notifier)
	manager.ConfigureStages(passthroughStages(nil))

	// Park a job between stages with a workspace on disk, then flag it
	// while no worker owns it.
	workspace := filepath.Join(t.TempDir(), "job-workspace")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 1024)
	job.Status = queue.StatusAcquired
	job.WorkspaceDir = workspace
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok, err := store.RequestCancel(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("RequestCancel: ok=%v err=%v", ok, err)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, job.ID, queue.StatusCancelled)

	if _, err := os.Stat(workspace); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace should be removed after cancellation, stat err = %v", err)
	}
	if _, err := store.NewJob(context.Background(), "owner-1", "file:abc", 1024); err != nil {
		t.Fatalf("resubmit after cancellation: %v", err)
	}
}

func TestManagerStageErrorCancelSentinelCancels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	manager := newTestManager(t, cfg, store, notifier)
	stages := passthroughStages(func(context.Context, *queue.Job) error {
		return services.ErrCancelled
	})
	manager.ConfigureStages(stages)

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 1024)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, job.ID, queue.StatusCancelled)
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	manager := newTestManager(t, cfg, store, &recordingNotifier{})
	if err := manager.Start(context.Background()); err == nil {
		manager.Stop()
		t.Fatal("expected error without configured stages")
	}
}

func TestManagerStatusReportsStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	manager := newTestManager(t, cfg, store, &recordingNotifier{})
	manager.ConfigureStages(passthroughStages(nil))

	summary := manager.Status(context.Background())
	if summary.Running {
		t.Fatal("manager should not report running before Start")
	}
	if len(summary.StageHealth) != 6 {
		t.Fatalf("expected 6 stage health entries, got %d", len(summary.StageHealth))
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s should be healthy: %+v", name, health)
		}
	}
}
