package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"quill/internal/queue"
)

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	ctx := context.Background()
	if _, err := env.store.NewJob(ctx, "owner-1", "file-alpha", 0); err != nil {
		t.Fatalf("create job: %v", err)
	}
	beta, err := env.store.NewJob(ctx, "owner-2", "file-beta", 0)
	if err != nil {
		t.Fatalf("create beta job: %v", err)
	}
	beta.Status = queue.StatusFailed
	if err := env.store.Update(ctx, beta); err != nil {
		t.Fatalf("update status: %v", err)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "Queue Status")
	requireContains(t, out, "Pending")
	requireContains(t, out, "Failed")
	if !strings.Contains(out, "Running") {
		t.Fatalf("expected workflow running in status output, got:\n%s", out)
	}
}

func TestDaemonStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.store.NewJob(context.Background(), "owner-1", "file-alpha", 0); err != nil {
		t.Fatalf("create job: %v", err)
	}

	// A bogus socket forces the offline fallback path.
	out, _, err := runCLI(t, []string{"status"}, env.socketPath+".missing", env.configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Pending")
}
