package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/segment"
	"quill/internal/services"
	"quill/internal/testsupport"
)

type fakeSegmentClient struct {
	mu            sync.Mutex
	texts         map[string]string
	transientLeft map[string]int
	permanentErr  map[string]error
	waitFor       map[string]<-chan struct{}
	done          map[string]chan struct{}
	calls         map[string]int
}

func newFakeSegmentClient() *fakeSegmentClient {
	return &fakeSegmentClient{
		texts:         make(map[string]string),
		transientLeft: make(map[string]int),
		permanentErr:  make(map[string]error),
		waitFor:       make(map[string]<-chan struct{}),
		done:          make(map[string]chan struct{}),
		calls:         make(map[string]int),
	}
}

func (f *fakeSegmentClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls[audioPath]++
	if n := f.transientLeft[audioPath]; n > 0 {
		f.transientLeft[audioPath] = n - 1
		f.mu.Unlock()
		return "", services.Wrap(services.ErrTransient, "transcription", "transcribe segment", "simulated transient failure", nil)
	}
	if err := f.permanentErr[audioPath]; err != nil {
		f.mu.Unlock()
		return "", err
	}
	text := f.texts[audioPath]
	wait := f.waitFor[audioPath]
	doneCh := f.done[audioPath]
	f.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if doneCh != nil {
		close(doneCh)
	}
	return text, nil
}

func (f *fakeSegmentClient) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// newTestTranscriber builds a transcriber with n planned segments on disk.
func newTestTranscriber(t *testing.T, client *fakeSegmentClient, n int) (*Transcriber, *queue.Store, *queue.Job, []string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.RetryAttempts = 3
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "owner-1", "file-abc", 0)
	job.WorkspaceDir = t.TempDir()

	rate := cfg.Audio.SampleRate
	window := int64(cfg.Transcription.SegmentSeconds) * int64(rate)
	segments := make([]segment.Segment, n)
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(job.WorkspaceDir, fmt.Sprintf("segment-%04d.wav", i))
		if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
		segments[i] = segment.Segment{
			Index:       i,
			StartSample: int64(i) * window,
			NumSamples:  window,
			SampleRate:  rate,
			Path:        path,
		}
		paths[i] = path
	}
	encoded, err := segment.EncodePlan(segments)
	if err != nil {
		t.Fatalf("encode plan: %v", err)
	}
	job.SegmentPlanJSON = encoded
	job.Status = queue.StatusTranscribing
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("persist job: %v", err)
	}

	tr := NewTranscriberWithClient(cfg, store, logging.NewNop(), client)
	tr.sleep = func(context.Context, time.Duration) error { return nil }
	return tr, store, job, paths
}

func TestTranscriberAssemblesInPlanOrder(t *testing.T) {
	client := newFakeSegmentClient()
	tr, _, job, paths := newTestTranscriber(t, client, 3)

	client.texts[paths[0]] = "first part"
	client.texts[paths[1]] = "second part"
	client.texts[paths[2]] = "third part"

	// Hold the first segment until the last one finishes so completion
	// order is the reverse of plan order.
	lastDone := make(chan struct{})
	client.done[paths[2]] = lastDone
	client.waitFor[paths[0]] = lastDone

	if err := tr.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.TranscriptFile == "" {
		t.Fatal("transcript file not recorded")
	}
	got, err := os.ReadFile(job.TranscriptFile)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(got) != "first part second part third part" {
		t.Fatalf("transcript out of order: %q", got)
	}
}

func TestTranscriberRetriesTransientSegment(t *testing.T) {
	client := newFakeSegmentClient()
	tr, _, job, paths := newTestTranscriber(t, client, 2)

	client.texts[paths[0]] = "alpha"
	client.texts[paths[1]] = "beta"
	client.transientLeft[paths[1]] = 2

	if err := tr.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := client.callCount(paths[1]); got != 3 {
		t.Fatalf("expected 3 attempts for the flaky segment, got %d", got)
	}
	got, err := os.ReadFile(job.TranscriptFile)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(got) != "alpha beta" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestTranscriberPermanentErrorFailsImmediately(t *testing.T) {
	client := newFakeSegmentClient()
	tr, _, job, paths := newTestTranscriber(t, client, 2)

	client.texts[paths[0]] = "alpha"
	client.permanentErr[paths[1]] = services.Wrap(services.ErrValidation, "transcription", "transcribe segment", "unsupported audio", nil)

	err := tr.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := client.callCount(paths[1]); got != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", got)
	}
}

func TestTranscriberFailsAfterRetryExhaustion(t *testing.T) {
	client := newFakeSegmentClient()
	tr, _, job, paths := newTestTranscriber(t, client, 1)

	tr.cfg.Transcription.RetryAttempts = 1
	client.transientLeft[paths[0]] = 10

	err := tr.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure after retry exhaustion")
	}
	if !services.IsTransient(err) {
		t.Fatalf("exhaustion should surface the transient cause, got %v", err)
	}
	if got := client.callCount(paths[0]); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestTranscriberHonorsCancelRequest(t *testing.T) {
	client := newFakeSegmentClient()
	tr, store, job, paths := newTestTranscriber(t, client, 3)
	client.texts[paths[0]] = "alpha"

	flagged, err := store.RequestCancel(context.Background(), job.ID)
	if err != nil || !flagged {
		t.Fatalf("RequestCancel: flagged=%v err=%v", flagged, err)
	}

	err = tr.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestTranscriberPrepareValidatesPlan(t *testing.T) {
	client := newFakeSegmentClient()
	tr, _, job, paths := newTestTranscriber(t, client, 1)

	noPlan := *job
	noPlan.SegmentPlanJSON = ""
	if err := tr.Prepare(context.Background(), &noPlan); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing plan, got %v", err)
	}

	if err := os.Remove(paths[0]); err != nil {
		t.Fatalf("remove segment: %v", err)
	}
	if err := tr.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing segment audio, got %v", err)
	}
}

func TestAssembleJoinsWithSingleSpaces(t *testing.T) {
	got := assemble([]string{"  one ", "", "two", "   ", "three  "})
	if got != "one two three" {
		t.Fatalf("assemble = %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Fatal("assemble produced a double space")
	}
}
