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

// planBody is the JSON document stored for a plan, everything except the
// columns the registry indexes on.
type planBody struct {
	StoryArc        *media.StoryArc        `json:"story_arc,omitempty"`
	EDL             []media.Segment        `json:"edl"`
	KeyMoments      []media.KeyMoment      `json:"key_moments,omitempty"`
	Transitions     []media.Transition     `json:"transitions,omitempty"`
	Recommendations []media.Recommendation `json:"recommendations,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
}

// CreatePlan persists a plan. The caller supplies the validated (or draft)
// content; the registry assigns the id.
func (s *Store) CreatePlan(ctx context.Context, plan *media.Plan) (*media.Plan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	payload, err := json.Marshal(planBody{
		StoryArc:        plan.StoryArc,
		EDL:             plan.EDL,
		KeyMoments:      plan.KeyMoments,
		Transitions:     plan.Transitions,
		Recommendations: plan.Recommendations,
		Warnings:        plan.Warnings,
	})
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO plans (id, media_id, status, mode, body_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.MediaID, string(plan.Status), plan.Mode, string(payload),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

func scanPlan(scanner interface{ Scan(dest ...any) error }) (*media.Plan, error) {
	var (
		id         string
		mediaID    string
		statusStr  string
		mode       string
		payload    string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &mediaID, &statusStr, &mode, &payload, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	plan := &media.Plan{
		ID:      id,
		MediaID: mediaID,
		Status:  media.PlanStatus(statusStr),
		Mode:    mode,
	}
	var body planBody
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	plan.StoryArc = body.StoryArc
	plan.EDL = body.EDL
	if plan.EDL == nil {
		plan.EDL = []media.Segment{}
	}
	plan.KeyMoments = body.KeyMoments
	plan.Transitions = body.Transitions
	plan.Recommendations = body.Recommendations
	plan.Warnings = body.Warnings
	if created, err := parseTimeString(createdRaw); err == nil {
		plan.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		plan.UpdatedAt = updated
	}
	return plan, nil
}

// GetPlan returns a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*media.Plan, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, media_id, status, mode, body_json, created_at, updated_at FROM plans WHERE id = ?`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// ListPlansByMedia returns plans for a media, newest first.
func (s *Store) ListPlansByMedia(ctx context.Context, mediaID string) ([]*media.Plan, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, media_id, status, mode, body_json, created_at, updated_at FROM plans WHERE media_id = ? ORDER BY created_at DESC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*media.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

// UpdatePlanStatus performs a conditional status transition on a plan.
func (s *Store) UpdatePlanStatus(ctx context.Context, id string, expected, next media.PlanStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), formatTime(time.Now().UTC()), id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
