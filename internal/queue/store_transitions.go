package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Claim atomically advances the oldest claimable job from one status to the
// next and returns it. Jobs with a pending cancel request are skipped so the
// workflow can finalize them instead. Returns nil when no job is available.
func (s *Store) Claim(ctx context.Context, from, to Status) (*Job, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var id int64
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, updated_at = ?, last_heartbeat = ?
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE status = ? AND cancel_requested = 0
                 ORDER BY created_at, id
                 LIMIT 1
             )
             RETURNING id`,
			to, now, now, from,
		)
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// UpdateHeartbeat stamps the liveness marker for a job being processed.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// RequestCancel flags a job for cooperative cancellation. Pending jobs are
// cancelled immediately; processing jobs are cancelled at the next stage
// checkpoint. Terminal jobs are left untouched.
func (s *Store) RequestCancel(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil || job.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if job.Status == StatusPending {
		_, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET status = ?, cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
			StatusCancelled, now, id, StatusPending,
		)
		if err != nil {
			return false, fmt.Errorf("cancel pending job: %w", err)
		}
		return true, nil
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	return true, nil
}

// ClaimCancelled atomically finalizes one job whose cancel flag was set while
// it sat between stages and returns it with terminal status. Without this
// sweep such a job would wait forever: Claim skips flagged rows and no worker
// owns them. Jobs in a processing status are left to their worker, which
// honors the flag at the next checkpoint. Returns nil when nothing is flagged.
func (s *Store) ClaimCancelled(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	statuses := waitingStatuses()
	placeholders := makePlaceholders(len(statuses))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	args := []any{StatusCancelled, now}
	for _, status := range statuses {
		args = append(args, status)
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			fmt.Sprintf(`UPDATE jobs
             SET status = ?, updated_at = ?, last_heartbeat = NULL
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE cancel_requested = 1 AND status IN (%s)
                 ORDER BY created_at, id
                 LIMIT 1
             )
             RETURNING id`, placeholders),
			args...,
		)
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim cancelled job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CancelRequested reports whether a cancel has been flagged for a job.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT cancel_requested FROM jobs WHERE id = ?`, id)
	var flag int
	if err := row.Scan(&flag); errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("query cancel flag: %w", err)
	}
	return flag != 0, nil
}

// RetryFailed returns a failed job to the start of the pipeline.
func (s *Store) RetryFailed(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = NULL, cancel_requested = 0,
             progress_stage = NULL, progress_percent = 0, progress_message = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending, now, id, StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry failed job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckProcessing rolls every in-flight job back to the start of its
// stage. Called once at daemon startup so work interrupted by a crash is
// picked up again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	query, args := rollbackQuery(
		`UPDATE jobs SET status = CASE status %s END, last_heartbeat = NULL, updated_at = ? WHERE status IN (%s)`,
	)
	res, err := s.execWithRetry(ensureContext(ctx), query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing rolls back in-flight jobs whose heartbeat is older
// than the timeout, recovering work lost to a dead worker.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout).Format(time.RFC3339Nano)
	query, args := rollbackQuery(
		`UPDATE jobs SET status = CASE status %s END, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (%s) AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
	)
	args = append(args, cutoff)
	res, err := s.execWithRetry(ensureContext(ctx), query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// waitingStatuses lists the statuses a job can hold while no worker owns it:
// pending plus every stage-start status.
func waitingStatuses() []Status {
	seen := make(map[Status]struct{}, len(processingRollbacks))
	statuses := make([]Status, 0, len(processingRollbacks))
	for _, start := range processingRollbacks {
		if _, ok := seen[start]; ok {
			continue
		}
		seen[start] = struct{}{}
		statuses = append(statuses, start)
	}
	return statuses
}

func sortedProcessingStatuses() []Status {
	statuses := make([]Status, 0, len(processingStatuses))
	for status := range processingStatuses {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}

// rollbackQuery builds a CASE expression mapping each processing status back
// to its stage-start status, plus the argument list ending with updated_at.
func rollbackQuery(template string) (string, []any) {
	statuses := sortedProcessingStatuses()

	var caseClause strings.Builder
	args := make([]any, 0, len(statuses)*2+2)
	for _, status := range statuses {
		caseClause.WriteString(" WHEN ? THEN ?")
		args = append(args, status, processingRollbacks[status])
	}

	placeholders := makePlaceholders(len(statuses))
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args = append(args, now)
	for _, status := range statuses {
		args = append(args, status)
	}

	return fmt.Sprintf(template, caseClause.String(), placeholders), args
}
