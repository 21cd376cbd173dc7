// ABOUTME: Profile store methods: lookup by owning user and insert-or-update
// ABOUTME: One profile per user; username is unique when set

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetProfile retrieves the profile owned by userID.
// Returns ErrNotFound if the user has no profile yet.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, username, bio, avatar_url, is_public, created_at, updated_at
		FROM profiles
		WHERE user_id = ?
	`

	var p Profile
	var username sql.NullString
	var public int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&username,
		&p.Bio,
		&p.AvatarURL,
		&public,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.Username = username.String
	p.IsPublic = public != 0
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile creates the profile or replaces its mutable fields.
// Returns ErrDuplicate if the username belongs to another user.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *Profile) error {
	now := nowUTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var username *string
	if p.Username != "" {
		username = &p.Username
	}

	query := `
		INSERT INTO profiles (user_id, username, bio, avatar_url, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			bio = excluded.bio,
			avatar_url = excluded.avatar_url,
			is_public = excluded.is_public,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.UserID,
		username,
		p.Bio,
		p.AvatarURL,
		boolToInt(p.IsPublic),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("upserted profile", "user_id", p.UserID)
	return nil
}
