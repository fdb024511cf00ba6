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

const mediaColumns = "id, source_uri, title, description, status, tech_json, created_at, updated_at"

func scanMedia(scanner interface{ Scan(dest ...any) error }) (*media.Media, error) {
	var (
		id         string
		sourceURI  string
		title      sql.NullString
		desc       sql.NullString
		statusStr  string
		techJSON   sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &sourceURI, &title, &desc, &statusStr, &techJSON, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	m := &media.Media{
		ID:          id,
		SourceURI:   sourceURI,
		Title:       title.String,
		Description: desc.String,
		Status:      media.MediaStatus(statusStr),
	}
	if techJSON.Valid && techJSON.String != "" {
		var tech media.TechMetadata
		if err := json.Unmarshal([]byte(techJSON.String), &tech); err == nil {
			m.Tech = &tech
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		m.UpdatedAt = updated
	}
	return m, nil
}

// CreateMedia registers a new media item in status registered.
func (s *Store) CreateMedia(ctx context.Context, sourceURI, title, description string) (*media.Media, error) {
	now := time.Now().UTC()
	m := &media.Media{
		ID:          uuid.NewString(),
		SourceURI:   sourceURI,
		Title:       title,
		Description: description,
		Status:      media.MediaRegistered,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO media (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SourceURI, nullableString(m.Title), nullableString(m.Description),
		string(m.Status), nil, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}
	return m, nil
}

// GetMedia returns a media item by id.
func (s *Store) GetMedia(ctx context.Context, id string) (*media.Media, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// ListMedia returns all media, newest first, optionally filtered by status.
func (s *Store) ListMedia(ctx context.Context, statuses ...media.MediaStatus) ([]*media.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []*media.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMediaStatus performs a conditional status transition. It returns
// ErrConflict when the current status does not match expected.
func (s *Store) UpdateMediaStatus(ctx context.Context, id string, expected, next media.MediaStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), formatTime(time.Now().UTC()), id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update media status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update media status: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// SetMediaTech stores probed technical metadata together with a conditional
// status transition, as one atomic write.
func (s *Store) SetMediaTech(ctx context.Context, id string, expected, next media.MediaStatus, tech *media.TechMetadata) error {
	payload, err := json.Marshal(tech)
	if err != nil {
		return fmt.Errorf("encode tech metadata: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media SET status = ?, tech_json = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), string(payload), formatTime(time.Now().UTC()), id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("set media tech: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set media tech: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// SoftDeleteMedia marks a media deleted. Derived entities stay in place but
// become unreachable through the API.
func (s *Store) SoftDeleteMedia(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		string(media.MediaDeleted), formatTime(time.Now().UTC()), id, string(media.MediaDeleted),
	)
	if err != nil {
		return fmt.Errorf("soft delete media: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete media: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
