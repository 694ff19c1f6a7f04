package acquire

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func newTestAcquirer(t *testing.T, fetcher Fetcher) (*Acquirer, *queue.Store, *queue.Job) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "owner-1", "file-abc", 0)
	acquirer := NewAcquirerWithFetcher(cfg, store, logging.NewNop(), fetcher)
	return acquirer, store, job
}

func TestAcquirerPrepareCreatesWorkspace(t *testing.T) {
	acquirer, _, job := newTestAcquirer(t, &fakeFetcher{payload: []byte("x")})
	if err := acquirer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if job.WorkspaceDir == "" {
		t.Fatal("Prepare did not set the workspace dir")
	}
	if _, err := os.Stat(job.WorkspaceDir); err != nil {
		t.Fatalf("workspace missing: %v", err)
	}
}

func TestAcquirerPrepareRejectsEmptySource(t *testing.T) {
	acquirer, _, job := newTestAcquirer(t, &fakeFetcher{})
	job.SourceRef = "  "
	err := acquirer.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcquirerExecuteDirectDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("direct "), 10)
	fetcher := &fakeFetcher{payload: payload}
	acquirer, _, job := newTestAcquirer(t, fetcher)
	if err := acquirer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if err := acquirer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Strategy != queue.StrategyDirect {
		t.Fatalf("small source should use the direct strategy, got %q", job.Strategy)
	}
	if job.DeclaredSize != int64(len(payload)) {
		t.Fatalf("Execute should fill the declared size from metadata, got %d", job.DeclaredSize)
	}
	if job.MediaFile == "" {
		t.Fatal("Execute did not record the media file")
	}
	got, err := os.ReadFile(job.MediaFile)
	if err != nil {
		t.Fatalf("read media file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("media file content mismatch")
	}
}

func TestAcquirerExecuteSelectsChunkedForLargeSources(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	fetcher := &fakeFetcher{payload: payload}
	acquirer, _, job := newTestAcquirer(t, fetcher)

	// Shrink the threshold so the test payload counts as large.
	acquirer.cfg.Acquisition.DirectLimitBytes = 1024
	acquirer.cfg.Acquisition.ChunkBytes = 512

	job.DeclaredSize = int64(len(payload))
	if err := acquirer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := acquirer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Strategy != queue.StrategyChunked {
		t.Fatalf("expected chunked strategy, got %q", job.Strategy)
	}
	if len(fetcher.calls) != 8 {
		t.Fatalf("expected 8 range requests, got %d", len(fetcher.calls))
	}

	got, err := os.ReadFile(job.MediaFile)
	if err != nil {
		t.Fatalf("read media file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("chunked media file content mismatch")
	}
}

func TestAcquirerExecuteRejectsOversizedSource(t *testing.T) {
	fetcher := &fakeFetcher{payload: []byte("x")}
	acquirer, _, job := newTestAcquirer(t, fetcher)
	acquirer.cfg.Acquisition.MaxSizeBytes = 1024

	job.DeclaredSize = 2048
	if err := acquirer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := acquirer.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrSizeExceeded) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestAcquirerExecuteDetectsShortDownload(t *testing.T) {
	fetcher := &fakeFetcher{payload: []byte("short")}
	acquirer, _, job := newTestAcquirer(t, fetcher)

	// Gateway declares more bytes than it serves.
	job.DeclaredSize = 100
	if err := acquirer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := acquirer.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for truncated download, got %v", err)
	}
}

func TestMediaFileName(t *testing.T) {
	tests := []struct {
		sourceRef string
		reported  string
		want      string
	}{
		{"file-abc", "voice note.ogg", "voice note.ogg"},
		{"file-abc", "../../etc/passwd", "passwd"},
		{"file-abc.mp4", "", "media.mp4"},
		{"file-abc", "", "media.bin"},
		{"file-abc", "bad:name?.mp3", "bad-name.mp3"},
	}
	for _, tc := range tests {
		if got := mediaFileName(tc.sourceRef, tc.reported); got != tc.want {
			t.Errorf("mediaFileName(%q, %q) = %q, want %q", tc.sourceRef, tc.reported, got, tc.want)
		}
	}
}
