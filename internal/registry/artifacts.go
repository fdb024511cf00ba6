package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storycut/internal/media"
)

// PutTranscript stores the full transcript in one write. Re-running the
// producing job replaces the row with identical content.
func (s *Store) PutTranscript(ctx context.Context, t *media.Transcript) error {
	payload, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR REPLACE INTO transcripts (media_id, language, segments_json, created_at) VALUES (?, ?, ?, ?)`,
		t.MediaID, nullableString(t.Language), string(payload), formatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("put transcript: %w", err)
	}
	return nil
}

// GetTranscript returns the transcript for a media or ErrNotFound.
func (s *Store) GetTranscript(ctx context.Context, mediaID string) (*media.Transcript, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT language, segments_json FROM transcripts WHERE media_id = ?`, mediaID)
	var (
		language sql.NullString
		payload  string
	)
	if err := row.Scan(&language, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	t := &media.Transcript{MediaID: mediaID, Language: language.String}
	if err := json.Unmarshal([]byte(payload), &t.Segments); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if t.Segments == nil {
		t.Segments = []media.TranscriptSegment{}
	}
	return t, nil
}

// PutSilenceMap stores the silence map in one write.
func (s *Store) PutSilenceMap(ctx context.Context, m *media.SilenceMap) error {
	payload, err := json.Marshal(m.Intervals)
	if err != nil {
		return fmt.Errorf("encode silence map: %w", err)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR REPLACE INTO silence_maps (media_id, intervals_json, created_at) VALUES (?, ?, ?)`,
		m.MediaID, string(payload), formatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("put silence map: %w", err)
	}
	return nil
}

// GetSilenceMap returns the silence map for a media or ErrNotFound.
func (s *Store) GetSilenceMap(ctx context.Context, mediaID string) (*media.SilenceMap, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT intervals_json FROM silence_maps WHERE media_id = ?`, mediaID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get silence map: %w", err)
	}
	m := &media.SilenceMap{MediaID: mediaID}
	if err := json.Unmarshal([]byte(payload), &m.Intervals); err != nil {
		return nil, fmt.Errorf("decode silence map: %w", err)
	}
	if m.Intervals == nil {
		m.Intervals = []media.SilenceInterval{}
	}
	return m, nil
}

// PutSceneCuts stores the cut list in one write.
func (s *Store) PutSceneCuts(ctx context.Context, c *media.SceneCuts) error {
	payload, err := json.Marshal(c.Cuts)
	if err != nil {
		return fmt.Errorf("encode scene cuts: %w", err)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR REPLACE INTO scene_cuts (media_id, cuts_json, created_at) VALUES (?, ?, ?)`,
		c.MediaID, string(payload), formatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("put scene cuts: %w", err)
	}
	return nil
}

// GetSceneCuts returns the cut list for a media or ErrNotFound.
func (s *Store) GetSceneCuts(ctx context.Context, mediaID string) (*media.SceneCuts, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT cuts_json FROM scene_cuts WHERE media_id = ?`, mediaID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scene cuts: %w", err)
	}
	c := &media.SceneCuts{MediaID: mediaID}
	if err := json.Unmarshal([]byte(payload), &c.Cuts); err != nil {
		return nil, fmt.Errorf("decode scene cuts: %w", err)
	}
	if c.Cuts == nil {
		c.Cuts = []float64{}
	}
	return c, nil
}

// ReplaceFrames replaces all frame descriptions for a media atomically.
func (s *Store) ReplaceFrames(ctx context.Context, mediaID string, frames []media.Frame) error {
	return s.inTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE media_id = ?`, mediaID); err != nil {
			return err
		}
		for _, frame := range frames {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO frames (media_id, t, description, confidence) VALUES (?, ?, ?, ?)`,
				mediaID, frame.T, frame.Description, frame.Confidence,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFrames returns frame descriptions ordered by timestamp.
func (s *Store) ListFrames(ctx context.Context, mediaID string) ([]media.Frame, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT t, description, confidence FROM frames WHERE media_id = ? ORDER BY t ASC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []media.Frame
	for rows.Next() {
		frame := media.Frame{MediaID: mediaID}
		var confidence sql.NullFloat64
		if err := rows.Scan(&frame.T, &frame.Description, &confidence); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frame.Confidence = confidence.Float64
		out = append(out, frame)
	}
	return out, rows.Err()
}

// ReplaceScenes replaces the derived scene index for a media atomically.
func (s *Store) ReplaceScenes(ctx context.Context, mediaID string, scenes []media.Scene) error {
	return s.inTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE media_id = ?`, mediaID); err != nil {
			return err
		}
		for _, scene := range scenes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO scenes (media_id, idx, start, end, description) VALUES (?, ?, ?, ?, ?)`,
				mediaID, scene.Index, scene.Start, scene.End, nullableString(scene.Description),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListScenes returns the derived scenes ordered by index.
func (s *Store) ListScenes(ctx context.Context, mediaID string) ([]media.Scene, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT idx, start, end, description FROM scenes WHERE media_id = ? ORDER BY idx ASC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var out []media.Scene
	for rows.Next() {
		scene := media.Scene{MediaID: mediaID}
		var description sql.NullString
		if err := rows.Scan(&scene.Index, &scene.Start, &scene.End, &description); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scene.Description = description.String
		out = append(out, scene)
	}
	return out, rows.Err()
}

// ReplaceClipCandidates replaces the candidate list for a media atomically.
func (s *Store) ReplaceClipCandidates(ctx context.Context, mediaID string, candidates []media.ClipCandidate) error {
	return s.inTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM clip_candidates WHERE media_id = ?`, mediaID); err != nil {
			return err
		}
		for i, cand := range candidates {
			features, err := json.Marshal(cand.Features)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO clip_candidates (media_id, idx, start, end, score, features_json, hook_text) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				mediaID, i, cand.Start, cand.End, cand.Score, string(features), nullableString(cand.HookText),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListClipCandidates returns the stored candidates in score order.
func (s *Store) ListClipCandidates(ctx context.Context, mediaID string) ([]media.ClipCandidate, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT start, end, score, features_json, hook_text FROM clip_candidates WHERE media_id = ? ORDER BY idx ASC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list clip candidates: %w", err)
	}
	defer rows.Close()

	var out []media.ClipCandidate
	for rows.Next() {
		cand := media.ClipCandidate{MediaID: mediaID}
		var (
			features sql.NullString
			hook     sql.NullString
		)
		if err := rows.Scan(&cand.Start, &cand.End, &cand.Score, &features, &hook); err != nil {
			return nil, fmt.Errorf("scan clip candidate: %w", err)
		}
		if features.Valid && features.String != "" {
			_ = json.Unmarshal([]byte(features.String), &cand.Features)
		}
		cand.HookText = hook.String
		out = append(out, cand)
	}
	return out, rows.Err()
}

func (s *Store) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
