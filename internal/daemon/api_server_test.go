package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"quill/internal/api"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/stage"
	"quill/internal/testsupport"
	"quill/internal/workflow"
)

type idleStage struct{}

func (idleStage) Prepare(context.Context, *queue.Job) error { return nil }
func (idleStage) Execute(context.Context, *queue.Job) error { return nil }
func (idleStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("idle")
}

func newServerFixture(t *testing.T) (*apiServer, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Acquirer: idleStage{}})
	d, err := New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if d.api == nil {
		t.Fatal("expected api server to be configured")
	}
	return d.api, store
}

func TestAPIServerHandleQueue(t *testing.T) {
	srv, store := newServerFixture(t)
	testsupport.NewJob(t, store, "owner-1", "file-abc", 512)

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].SourceRef != "file-abc" {
		t.Fatalf("unexpected source reference: %q", resp.Items[0].SourceRef)
	}
}

func TestAPIServerHandleQueueStatusFilter(t *testing.T) {
	srv, store := newServerFixture(t)
	pending := testsupport.NewJob(t, store, "owner-1", "file-1", 0)
	done := testsupport.NewJob(t, store, "owner-1", "file-2", 0)
	done.Status = queue.StatusCompleted
	if err := store.Update(context.Background(), done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue?status=pending", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != pending.ID {
		t.Fatalf("status filter not applied: %#v", resp.Items)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue?status=never-such", nil)
	w = httptest.NewRecorder()
	srv.handleQueue(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestAPIServerHandleQueueItem(t *testing.T) {
	srv, store := newServerFixture(t)
	job := testsupport.NewJob(t, store, "owner-7", "file-xyz", 128)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/"+strconv.FormatInt(job.ID, 10), nil)
	w := httptest.NewRecorder()
	srv.handleQueueItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.JobItemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Item.ID != job.ID || resp.Item.OwnerID != "owner-7" {
		t.Fatalf("unexpected item: %#v", resp.Item)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue/999999", nil)
	w = httptest.NewRecorder()
	srv.handleQueueItem(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing job, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue/not-a-number", nil)
	w = httptest.NewRecorder()
	srv.handleQueueItem(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", w.Code)
	}
}

func TestAPIServerHandleStatus(t *testing.T) {
	srv, _ := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Running {
		t.Fatal("daemon was never started")
	}
	if len(resp.Dependencies) != 2 {
		t.Fatalf("expected 2 dependency checks, got %d", len(resp.Dependencies))
	}
	if resp.QueueDBPath == "" {
		t.Fatal("expected queue database path in status")
	}
}

func TestNewAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "  "
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Acquirer: idleStage{}})
	d, err := New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if d.api != nil {
		t.Fatal("expected api server to stay disabled without a bind address")
	}
}
