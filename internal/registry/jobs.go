package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storycut/internal/media"
)

const jobColumns = "id, media_id, kind, status, attempt, input_json, result_json, error_code, error_message, error_details, cancel_requested, not_before, lease_heartbeat, usage_json, enqueued_at, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*media.Job, error) {
	var (
		id              string
		mediaID         string
		kind            string
		statusStr       string
		attempt         int
		inputJSON       sql.NullString
		resultJSON      sql.NullString
		errorCode       sql.NullString
		errorMessage    sql.NullString
		errorDetails    sql.NullString
		cancelRequested sql.NullInt64
		notBeforeRaw    sql.NullString
		heartbeatRaw    sql.NullString
		usageJSON       sql.NullString
		enqueuedRaw     string
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&id, &mediaID, &kind, &statusStr, &attempt,
		&inputJSON, &resultJSON,
		&errorCode, &errorMessage, &errorDetails,
		&cancelRequested, &notBeforeRaw, &heartbeatRaw, &usageJSON,
		&enqueuedRaw, &startedRaw, &finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &media.Job{
		ID:         id,
		MediaID:    mediaID,
		Kind:       media.JobKind(kind),
		Status:     media.JobStatus(statusStr),
		Attempt:    attempt,
		InputJSON:  inputJSON.String,
		ResultJSON: resultJSON.String,
	}
	if errorCode.Valid || errorMessage.Valid {
		job.Error = &media.JobError{
			Code:    errorCode.String,
			Message: errorMessage.String,
			Details: errorDetails.String,
		}
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}
	if notBeforeRaw.Valid {
		job.NotBefore = parseTimePtr(notBeforeRaw.String)
	}
	if heartbeatRaw.Valid {
		job.LeaseHeartbeat = parseTimePtr(heartbeatRaw.String)
	}
	if usageJSON.Valid && usageJSON.String != "" {
		var usage media.TokenUsage
		if err := json.Unmarshal([]byte(usageJSON.String), &usage); err == nil {
			job.Usage = &usage
		}
	}
	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		job.EnqueuedAt = enqueued
	}
	if startedRaw.Valid {
		job.StartedAt = parseTimePtr(startedRaw.String)
	}
	if finishedRaw.Valid {
		job.FinishedAt = parseTimePtr(finishedRaw.String)
	}
	return job, nil
}

// CreateJob enqueues a new job. Attempt counts from 1; retry supervisors
// pass the predecessor's attempt+1.
func (s *Store) CreateJob(ctx context.Context, mediaID string, kind media.JobKind, inputJSON string, attempt int) (*media.Job, error) {
	if attempt <= 0 {
		attempt = 1
	}
	now := time.Now().UTC()
	job := &media.Job{
		ID:         uuid.NewString(),
		MediaID:    mediaID,
		Kind:       kind,
		Status:     media.JobQueued,
		Attempt:    attempt,
		InputJSON:  inputJSON,
		EnqueuedAt: now,
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, media_id, kind, status, attempt, input_json, enqueued_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.MediaID, string(job.Kind), string(job.Status), job.Attempt,
		nullableString(job.InputJSON), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// CreateDelayedJob enqueues a job that becomes claimable at notBefore.
func (s *Store) CreateDelayedJob(ctx context.Context, mediaID string, kind media.JobKind, inputJSON string, attempt int, notBefore time.Time) (*media.Job, error) {
	job, err := s.CreateJob(ctx, mediaID, kind, inputJSON, attempt)
	if err != nil {
		return nil, err
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET not_before = ? WHERE id = ?`,
		formatTime(notBefore), job.ID,
	); err != nil {
		return nil, fmt.Errorf("delay job: %w", err)
	}
	nb := notBefore.UTC()
	job.NotBefore = &nb
	return job, nil
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*media.Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// NextQueued returns the oldest claimable queued job, or nil when none.
func (s *Store) NextQueued(ctx context.Context, now time.Time) (*media.Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
		 ORDER BY enqueued_at ASC LIMIT 1`,
		string(media.JobQueued), formatTime(now),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// ClaimJob performs the conditional queued -> running transition. Exactly
// one caller wins; the rest observe ErrConflict.
func (s *Store) ClaimJob(ctx context.Context, id string) error {
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, started_at = ?, lease_heartbeat = ? WHERE id = ? AND status = ?`,
		string(media.JobRunning), now, now, id, string(media.JobQueued),
	)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// DeferJob pushes a still-queued job's claimable time into the future. Used
// when preconditions are not yet met.
func (s *Store) DeferJob(ctx context.Context, id string, until time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET not_before = ? WHERE id = ? AND status = ?`,
		formatTime(until), id, string(media.JobQueued),
	)
	if err != nil {
		return fmt.Errorf("defer job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("defer job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteJob performs the conditional running -> completed transition and
// stores the result payload plus optional token usage in one write.
func (s *Store) CompleteJob(ctx context.Context, id, resultJSON string, usage *media.TokenUsage) error {
	var usagePayload any
	if usage != nil {
		encoded, err := json.Marshal(usage)
		if err != nil {
			return fmt.Errorf("encode usage: %w", err)
		}
		usagePayload = string(encoded)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, result_json = ?, usage_json = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(media.JobCompleted), nullableString(resultJSON), usagePayload,
		formatTime(time.Now().UTC()), id, string(media.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// FailJob performs the conditional running -> failed transition.
func (s *Store) FailJob(ctx context.Context, id string, jobErr media.JobError) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_code = ?, error_message = ?, error_details = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(media.JobFailed), nullableString(jobErr.Code), nullableString(jobErr.Message),
		nullableString(jobErr.Details), formatTime(time.Now().UTC()), id, string(media.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// CancelQueuedJob performs the conditional queued -> cancelled transition.
func (s *Store) CancelQueuedJob(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(media.JobCancelled), formatTime(time.Now().UTC()), id, string(media.JobQueued),
	)
	if err != nil {
		return fmt.Errorf("cancel queued job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel queued job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// CancelRunningJob performs the running -> cancelled transition after a
// handler observed the cancel flag and released its resources.
func (s *Store) CancelRunningJob(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(media.JobCancelled), formatTime(time.Now().UTC()), id, string(media.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("cancel running job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel running job: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// RequestCancel sets the cooperative cancel flag on a non-terminal job.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1 WHERE id = ? AND status IN (?, ?)`,
		id, string(media.JobQueued), string(media.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// CancelRequested reports whether a cancel has been requested for the job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT cancel_requested FROM jobs WHERE id = ?`, id)
	var flag int
	if err := row.Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("cancel requested: %w", err)
	}
	return flag != 0, nil
}

// UpdateJobHeartbeat refreshes the lease heartbeat of a running job.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET lease_heartbeat = ? WHERE id = ? AND status = ?`,
		formatTime(time.Now().UTC()), id, string(media.JobRunning),
	); err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails running jobs whose heartbeat expired before cutoff and
// returns them so the supervisor can enqueue successors. Failing rather
// than requeueing keeps each job record's status sequence monotonic.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) ([]*media.Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND lease_heartbeat IS NOT NULL AND lease_heartbeat < ?`,
		string(media.JobRunning), formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}
	stale := make([]*media.Job, 0, 4)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		stale = append(stale, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reclaimed := make([]*media.Job, 0, len(stale))
	for _, job := range stale {
		err := s.FailJob(ctx, job.ID, media.JobError{
			Code:    "WorkerLost",
			Message: "worker heartbeat expired",
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return reclaimed, err
		}
		reclaimed = append(reclaimed, job)
	}
	return reclaimed, nil
}

// ListJobsByMedia returns jobs for a media, newest first, optionally
// filtered by kind.
func (s *Store) ListJobsByMedia(ctx context.Context, mediaID string, kinds ...media.JobKind) ([]*media.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE media_id = ?`
	args := []any{mediaID}
	if len(kinds) > 0 {
		query += ` AND kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, string(kind))
		}
	}
	query += ` ORDER BY enqueued_at DESC`
	return s.queryJobs(ctx, query, args...)
}

// ListJobs returns jobs across all media, oldest first, optionally filtered
// by status.
func (s *Store) ListJobs(ctx context.Context, statuses ...media.JobStatus) ([]*media.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY enqueued_at ASC`
	return s.queryJobs(ctx, query, args...)
}

// FindJob returns the newest job for (media, kind) restricted to the given
// statuses, or nil when none matches. Used for dedupe and idempotency.
func (s *Store) FindJob(ctx context.Context, mediaID string, kind media.JobKind, statuses ...media.JobStatus) (*media.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE media_id = ? AND kind = ?`
	args := []any{mediaID, string(kind)}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY enqueued_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ensureContext(ctx), query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

// JobCounts summarizes jobs per status for health reporting.
func (s *Store) JobCounts(ctx context.Context) (map[media.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[media.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[media.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*media.Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*media.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
