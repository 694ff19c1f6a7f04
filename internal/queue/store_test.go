package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quill/internal/queue"
	"quill/internal/testsupport"
)

func TestNewJobRejectsDuplicateInFlight(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.NewJob(ctx, "owner-1", "file:abc123", 1024)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if first.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}

	if _, err := store.NewJob(ctx, "owner-1", "file:abc123", 1024); !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	// A different owner submitting the same source is a separate job.
	if _, err := store.NewJob(ctx, "owner-2", "file:abc123", 1024); err != nil {
		t.Fatalf("NewJob for second owner: %v", err)
	}

	// Once the original finishes, the same pair may be submitted again.
	first.Status = queue.StatusCompleted
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.NewJob(ctx, "owner-1", "file:abc123", 1024); err != nil {
		t.Fatalf("resubmit after completion: %v", err)
	}
}

func TestClaimAdvancesOldestAndSkipsCancelled(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	older := testsupport.NewJob(t, store, "owner-1", "file:one", 10)
	time.Sleep(5 * time.Millisecond)
	newer := testsupport.NewJob(t, store, "owner-1", "file:two", 10)

	older.CancelRequested = true
	if err := store.Update(ctx, older); err != nil {
		t.Fatalf("Update: %v", err)
	}

	claimed, err := store.Claim(ctx, queue.StatusPending, queue.StatusAcquiring)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != newer.ID {
		t.Fatalf("expected job %d claimed, got %+v", newer.ID, claimed)
	}
	if claimed.Status != queue.StatusAcquiring {
		t.Fatalf("expected acquiring, got %s", claimed.Status)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("expected heartbeat stamped on claim")
	}

	// Only the cancel-flagged job remains pending; nothing else claimable.
	again, err := store.Claim(ctx, queue.StatusPending, queue.StatusAcquiring)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no claimable job, got %d", again.ID)
	}
}

func TestClaimIsExclusiveAcrossWorkers(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const jobs = 4
	for i := 0; i < jobs; i++ {
		testsupport.NewJob(t, store, "owner-1", "file:"+string(rune('a'+i)), 10)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for worker := 0; worker < 3; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx, queue.StatusPending, queue.StatusAcquiring)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("expected %d distinct claims, got %d", jobs, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %d claimed %d times", id, count)
		}
	}
}

func TestUpdateRoundTripsAllFields(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 2048)
	job.Strategy = queue.StrategyChunked
	job.Status = queue.StatusSegmented
	job.WorkspaceDir = "/tmp/quill/job-1"
	job.MediaFile = "/tmp/quill/job-1/media.mp4"
	job.AudioFile = "/tmp/quill/job-1/audio.wav"
	job.DurationSeconds = 3723.5
	job.SegmentPlanJSON = `[{"index":0,"offset":0,"duration":1800}]`
	job.TranscriptFile = "/tmp/quill/job-1/transcript.txt"
	job.SetProgress("transcribing", "segment 2 of 3", 42.5)

	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Strategy != queue.StrategyChunked {
		t.Fatalf("strategy = %s", got.Strategy)
	}
	if got.Status != queue.StatusSegmented {
		t.Fatalf("status = %s", got.Status)
	}
	if got.DurationSeconds != 3723.5 {
		t.Fatalf("duration = %v", got.DurationSeconds)
	}
	if got.SegmentPlanJSON != job.SegmentPlanJSON {
		t.Fatalf("segment plan = %q", got.SegmentPlanJSON)
	}
	if got.ProgressStage != "transcribing" || got.ProgressPercent != 42.5 {
		t.Fatalf("progress = %s %v", got.ProgressStage, got.ProgressPercent)
	}
}

func TestRequestCancelPendingIsImmediate(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 10)
	ok, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if !ok {
		t.Fatal("expected cancel to be accepted")
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestRequestCancelProcessingSetsFlag(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 10)
	job.Status = queue.StatusTranscribing
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ok, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if !ok {
		t.Fatal("expected cancel to be accepted")
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusTranscribing {
		t.Fatalf("processing job should keep its status, got %s", got.Status)
	}
	if !got.CancelRequested {
		t.Fatal("expected cancel_requested flag")
	}

	flagged, err := store.CancelRequested(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !flagged {
		t.Fatal("CancelRequested should report true")
	}
}

func TestClaimCancelledFinalizesWaitingJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:waiting", 10)
	job.Status = queue.StatusAcquired
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok, err := store.RequestCancel(ctx, job.ID); err != nil || !ok {
		t.Fatalf("RequestCancel: ok=%v err=%v", ok, err)
	}

	// A processing job with the flag set stays with its worker.
	busy := testsupport.NewJob(t, store, "owner-2", "file:busy", 10)
	busy.Status = queue.StatusTranscribing
	if err := store.Update(ctx, busy); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.RequestCancel(ctx, busy.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	// The ordinary claim path never picks the flagged row up.
	claimed, err := store.Claim(ctx, queue.StatusAcquired, queue.StatusExtracting)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("flagged job must not be claimed, got %d", claimed.ID)
	}

	swept, err := store.ClaimCancelled(ctx)
	if err != nil {
		t.Fatalf("ClaimCancelled: %v", err)
	}
	if swept == nil || swept.ID != job.ID {
		t.Fatalf("expected job %d swept, got %+v", job.ID, swept)
	}
	if swept.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", swept.Status)
	}

	// The processing job is not touched and the sweep is one-shot.
	if again, err := store.ClaimCancelled(ctx); err != nil {
		t.Fatalf("ClaimCancelled: %v", err)
	} else if again != nil {
		t.Fatalf("expected nothing left to sweep, got job %d", again.ID)
	}
	if got, err := store.GetByID(ctx, busy.ID); err != nil || got.Status != queue.StatusTranscribing {
		t.Fatalf("processing job should keep its status, got %+v err=%v", got, err)
	}

	// The terminal row frees the key for a fresh submission.
	if _, err := store.NewJob(ctx, "owner-1", "file:waiting", 10); err != nil {
		t.Fatalf("resubmit after cancellation: %v", err)
	}
}

func TestRequestCancelTerminalIsNoop(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 10)
	job.Status = queue.StatusCompleted
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ok, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if ok {
		t.Fatal("cancel of a terminal job should be rejected")
	}
}

func TestResetStuckProcessingRollsBackToStageStart(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	cases := map[queue.Status]queue.Status{
		queue.StatusAcquiring:    queue.StatusPending,
		queue.StatusExtracting:   queue.StatusAcquired,
		queue.StatusSegmenting:   queue.StatusExtracted,
		queue.StatusTranscribing: queue.StatusSegmented,
		queue.StatusFormatting:   queue.StatusTranscribed,
		queue.StatusDelivering:   queue.StatusFormatted,
	}

	ids := make(map[int64]queue.Status)
	i := 0
	for processing, rollback := range cases {
		job := testsupport.NewJob(t, store, "owner-1", "file:"+string(rune('a'+i)), 10)
		job.Status = processing
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ids[job.ID] = rollback
		i++
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if count != int64(len(cases)) {
		t.Fatalf("expected %d rollbacks, got %d", len(cases), count)
	}

	for id, want := range ids {
		got, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != want {
			t.Fatalf("job %d rolled back to %s, want %s", id, got.Status, want)
		}
		if got.LastHeartbeat != nil {
			t.Fatalf("job %d heartbeat should be cleared", id)
		}
	}
}

func TestReclaimStaleProcessingHonorsHeartbeat(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	stale := testsupport.NewJob(t, store, "owner-1", "file:stale", 10)
	stale.Status = queue.StatusTranscribing
	old := time.Now().UTC().Add(-time.Hour)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := testsupport.NewJob(t, store, "owner-1", "file:fresh", 10)
	fresh.Status = queue.StatusTranscribing
	now := time.Now().UTC()
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, 30*time.Second)
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaim, got %d", count)
	}

	gotStale, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gotStale.Status != queue.StatusSegmented {
		t.Fatalf("stale job should roll back to segmented, got %s", gotStale.Status)
	}

	gotFresh, err := store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gotFresh.Status != queue.StatusTranscribing {
		t.Fatalf("fresh job should keep processing, got %s", gotFresh.Status)
	}
}

func TestRetryFailedResetsJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 10)
	job.SetFailed("gateway refused range request")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ok, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if !ok {
		t.Fatal("expected retry to apply")
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("error message should be cleared, got %q", got.ErrorMessage)
	}

	// Retry of a non-failed job does nothing.
	ok, err = store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if ok {
		t.Fatal("retry of pending job should not apply")
	}
}

func TestStatsAndHealthGroupByStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	pending := testsupport.NewJob(t, store, "owner-1", "file:a", 10)
	_ = pending
	processing := testsupport.NewJob(t, store, "owner-1", "file:b", 10)
	processing.Status = queue.StatusExtracting
	if err := store.Update(ctx, processing); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done := testsupport.NewJob(t, store, "owner-1", "file:c", 10)
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusExtracting] != 1 || stats[queue.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestClearVariants(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	completed := testsupport.NewJob(t, store, "owner-1", "file:a", 10)
	completed.Status = queue.StatusCompleted
	if err := store.Update(ctx, completed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	failed := testsupport.NewJob(t, store, "owner-1", "file:b", 10)
	failed.SetFailed("boom")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	testsupport.NewJob(t, store, "owner-1", "file:c", 10)

	n, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completed cleared, got %d", n)
	}

	n, err = store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 failed cleared, got %d", n)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != queue.StatusPending {
		t.Fatalf("unexpected remaining jobs: %+v", remaining)
	}

	n, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job cleared, got %d", n)
	}
}

func TestFindActiveIgnoresTerminal(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "owner-1", "file:abc", 10)

	active, err := store.FindActive(ctx, "owner-1", "file:abc")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active == nil || active.ID != job.ID {
		t.Fatalf("expected job %d, got %+v", job.ID, active)
	}

	job.Status = queue.StatusCancelled
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err = store.FindActive(ctx, "owner-1", "file:abc")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active job, got %d", active.ID)
	}
}
