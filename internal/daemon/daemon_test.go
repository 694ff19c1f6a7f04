package daemon_test

import (
	"context"
	"testing"
	"time"

	"quill/internal/daemon"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/stage"
	"quill/internal/testsupport"
	"quill/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Acquirer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSubmitValidates(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	if _, err := d.Submit(ctx, "  ", "file-1", 0); err == nil {
		t.Fatal("expected error for blank owner id")
	}
	if _, err := d.Submit(ctx, "owner-9", "   ", 0); err == nil {
		t.Fatal("expected error for blank source reference")
	}

	job, err := d.Submit(ctx, "owner-9", "file-1", 2048)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	if job.OwnerID != "owner-9" || job.SourceRef != "file-1" || job.DeclaredSize != 2048 {
		t.Fatalf("job fields not recorded: %#v", job)
	}
}

func TestDaemonCancelPassesThrough(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file-2", 0)
	ok, err := d.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Fatal("expected pending job to be cancellable")
	}

	refreshed, err := d.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if refreshed.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", refreshed.Status)
	}
}

func TestDaemonStatusReportsDependencies(t *testing.T) {
	d, _ := newTestDaemon(t)

	status := d.Status(context.Background())
	if len(status.Dependencies) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe dependency checks, got %d", len(status.Dependencies))
	}
	if status.QueueDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("expected paths in status: %#v", status)
	}
	if status.PID <= 0 {
		t.Fatalf("expected daemon pid, got %d", status.PID)
	}
}
