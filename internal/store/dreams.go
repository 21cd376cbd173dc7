// ABOUTME: Dream store methods: CRUD plus per-user and public listings
// ABOUTME: Listings are newest first and capped by a normalized limit

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const dreamColumns = `id, user_id, title, content, mood, is_public, transcript, comic_image_url, video_url, created_at, updated_at`

// normalizeListLimit applies default (50) and cap (200) to list limits.
func normalizeListLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}

// CreateDream inserts a new dream. ID and timestamps are filled in when unset.
func (s *SQLiteStore) CreateDream(ctx context.Context, d *Dream) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = nowUTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	query := `INSERT INTO dreams (` + dreamColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.UserID,
		d.Title,
		d.Content,
		d.Mood,
		boolToInt(d.IsPublic),
		d.Transcript,
		d.ComicImageURL,
		d.VideoURL,
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting dream: %w", err)
	}

	s.logger.Debug("created dream", "id", d.ID, "user_id", d.UserID)
	return nil
}

// GetDream retrieves a dream by ID.
// Returns ErrNotFound if the dream doesn't exist.
func (s *SQLiteStore) GetDream(ctx context.Context, id string) (*Dream, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dreamColumns+` FROM dreams WHERE id = ?`, id)
	d, err := scanDream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDreamsByUser returns dreams owned by userID, newest first.
func (s *SQLiteStore) ListDreamsByUser(ctx context.Context, userID string, limit int) ([]*Dream, error) {
	query := `SELECT ` + dreamColumns + ` FROM dreams WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return s.queryDreams(ctx, query, userID, normalizeListLimit(limit))
}

// ListPublicDreams returns dreams marked public, newest first.
func (s *SQLiteStore) ListPublicDreams(ctx context.Context, limit int) ([]*Dream, error) {
	query := `SELECT ` + dreamColumns + ` FROM dreams WHERE is_public = 1 ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return s.queryDreams(ctx, query, normalizeListLimit(limit))
}

// UpdateDream replaces the mutable fields of a dream and bumps updated_at.
// Returns ErrNotFound if the dream doesn't exist.
func (s *SQLiteStore) UpdateDream(ctx context.Context, d *Dream) error {
	d.UpdatedAt = nowUTC()

	query := `
		UPDATE dreams
		SET title = ?, content = ?, mood = ?, is_public = ?,
			transcript = ?, comic_image_url = ?, video_url = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		d.Title,
		d.Content,
		d.Mood,
		boolToInt(d.IsPublic),
		d.Transcript,
		d.ComicImageURL,
		d.VideoURL,
		formatTime(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating dream: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Debug("updated dream", "id", d.ID)
	return nil
}

// DeleteDream removes a dream by ID.
// Returns ErrNotFound if the dream doesn't exist.
func (s *SQLiteStore) DeleteDream(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dreams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting dream: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Debug("deleted dream", "id", id)
	return nil
}

func (s *SQLiteStore) queryDreams(ctx context.Context, query string, args ...any) ([]*Dream, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dreams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dreams := []*Dream{}
	for rows.Next() {
		d, err := scanDream(rows)
		if err != nil {
			return nil, err
		}
		dreams = append(dreams, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dreams: %w", err)
	}
	return dreams, nil
}

// scanDream returns sql.ErrNoRows unwrapped so callers can map it.
func scanDream(row rowScanner) (*Dream, error) {
	var d Dream
	var public int
	var createdAt, updatedAt string

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Title,
		&d.Content,
		&d.Mood,
		&public,
		&d.Transcript,
		&d.ComicImageURL,
		&d.VideoURL,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning dream: %w", err)
	}

	d.IsPublic = public != 0
	if d.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// requireAffected maps a zero-row update or delete to ErrNotFound.
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
