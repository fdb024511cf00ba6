package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storycut/internal/media"
)

const renderColumns = "id, media_id, plan_id, aspect_ratio, status, output_uri, duration_seconds, error_code, error_message, error_details, started_at, finished_at, created_at"

func scanRender(scanner interface{ Scan(dest ...any) error }) (*media.Render, error) {
	var (
		id           string
		mediaID      string
		planID       string
		aspect       string
		statusStr    string
		outputURI    sql.NullString
		duration     sql.NullFloat64
		errorCode    sql.NullString
		errorMessage sql.NullString
		errorDetails sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(
		&id, &mediaID, &planID, &aspect, &statusStr,
		&outputURI, &duration,
		&errorCode, &errorMessage, &errorDetails,
		&startedRaw, &finishedRaw, &createdRaw,
	); err != nil {
		return nil, err
	}

	r := &media.Render{
		ID:              id,
		MediaID:         mediaID,
		PlanID:          planID,
		AspectRatio:     media.AspectRatio(aspect),
		Status:          media.RenderStatus(statusStr),
		OutputURI:       outputURI.String,
		DurationSeconds: duration.Float64,
	}
	if errorCode.Valid || errorMessage.Valid {
		r.Error = &media.JobError{
			Code:    errorCode.String,
			Message: errorMessage.String,
			Details: errorDetails.String,
		}
	}
	if startedRaw.Valid {
		r.StartedAt = parseTimePtr(startedRaw.String)
	}
	if finishedRaw.Valid {
		r.FinishedAt = parseTimePtr(finishedRaw.String)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		r.CreatedAt = created
	}
	return r, nil
}

// CreateRender records a new queued render for (plan, aspect).
func (s *Store) CreateRender(ctx context.Context, mediaID, planID string, aspect media.AspectRatio) (*media.Render, error) {
	now := time.Now().UTC()
	r := &media.Render{
		ID:          uuid.NewString(),
		MediaID:     mediaID,
		PlanID:      planID,
		AspectRatio: aspect,
		Status:      media.RenderQueued,
		CreatedAt:   now,
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO renders (id, media_id, plan_id, aspect_ratio, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.MediaID, r.PlanID, string(r.AspectRatio), string(r.Status), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create render: %w", err)
	}
	return r, nil
}

// GetRender returns a render by id.
func (s *Store) GetRender(ctx context.Context, id string) (*media.Render, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	r, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get render: %w", err)
	}
	return r, nil
}

// ListRendersByPlan returns renders for a plan, newest first.
func (s *Store) ListRendersByPlan(ctx context.Context, planID string) ([]*media.Render, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+renderColumns+` FROM renders WHERE plan_id = ? ORDER BY created_at DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer rows.Close()

	var out []*media.Render
	for rows.Next() {
		r, err := scanRender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan render: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindRender returns the newest render for (plan, aspect) restricted to the
// given statuses, or nil. A completed render satisfies the idempotency key;
// a failed one does not block a fresh attempt.
func (s *Store) FindRender(ctx context.Context, planID string, aspect media.AspectRatio, statuses ...media.RenderStatus) (*media.Render, error) {
	query := `SELECT ` + renderColumns + ` FROM renders WHERE plan_id = ? AND aspect_ratio = ?`
	args := []any{planID, string(aspect)}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ensureContext(ctx), query, args...)
	r, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find render: %w", err)
	}
	return r, nil
}

// StartRender performs the conditional queued -> running transition.
func (s *Store) StartRender(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE renders SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(media.RenderRunning), formatTime(time.Now().UTC()), id, string(media.RenderQueued),
	)
	if err != nil {
		return fmt.Errorf("start render: %w", err)
	}
	return affectedOrConflict(res)
}

// CompleteRender stores the output in the same write as the terminal
// transition so output_uri is never visible on a non-completed render.
func (s *Store) CompleteRender(ctx context.Context, id, outputURI string, durationSeconds float64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE renders SET status = ?, output_uri = ?, duration_seconds = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(media.RenderCompleted), outputURI, durationSeconds,
		formatTime(time.Now().UTC()), id, string(media.RenderRunning),
	)
	if err != nil {
		return fmt.Errorf("complete render: %w", err)
	}
	return affectedOrConflict(res)
}

// FailRender performs the conditional running -> failed transition.
func (s *Store) FailRender(ctx context.Context, id string, renderErr media.JobError) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE renders SET status = ?, error_code = ?, error_message = ?, error_details = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(media.RenderFailed), nullableString(renderErr.Code), nullableString(renderErr.Message),
		nullableString(renderErr.Details), formatTime(time.Now().UTC()),
		id, string(media.RenderQueued), string(media.RenderRunning),
	)
	if err != nil {
		return fmt.Errorf("fail render: %w", err)
	}
	return affectedOrConflict(res)
}

// CancelRender moves a queued or running render to cancelled.
func (s *Store) CancelRender(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE renders SET status = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(media.RenderCancelled), formatTime(time.Now().UTC()),
		id, string(media.RenderQueued), string(media.RenderRunning),
	)
	if err != nil {
		return fmt.Errorf("cancel render: %w", err)
	}
	return affectedOrConflict(res)
}

func affectedOrConflict(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
