// ABOUTME: Generation task store methods for tracking async media jobs
// ABOUTME: Tasks link a user (and optionally a dream) to a remote job id

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const taskColumns = `id, user_id, dream_id, kind, remote_id, status, result_url, error, created_at, updated_at`

// CreateGenerationTask inserts a new task. ID, Status and timestamps are
// filled in when unset.
func (s *SQLiteStore) CreateGenerationTask(ctx context.Context, t *GenerationTask) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = nowUTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	var dreamID *string
	if t.DreamID != "" {
		dreamID = &t.DreamID
	}

	query := `INSERT INTO generation_tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		dreamID,
		t.Kind,
		t.RemoteID,
		t.Status,
		t.ResultURL,
		t.Error,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting generation task: %w", err)
	}

	s.logger.Debug("created generation task", "id", t.ID, "kind", t.Kind, "remote_id", t.RemoteID)
	return nil
}

// GetGenerationTask retrieves a task by ID.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) GetGenerationTask(ctx context.Context, id string) (*GenerationTask, error) {
	var t GenerationTask
	var dreamID sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM generation_tasks WHERE id = ?`, id).Scan(
		&t.ID,
		&t.UserID,
		&dreamID,
		&t.Kind,
		&t.RemoteID,
		&t.Status,
		&t.ResultURL,
		&t.Error,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying generation task: %w", err)
	}

	t.DreamID = dreamID.String
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateGenerationTask stores the latest status, result and error of a task.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) UpdateGenerationTask(ctx context.Context, t *GenerationTask) error {
	t.UpdatedAt = nowUTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE generation_tasks SET status = ?, result_url = ?, error = ?, updated_at = ? WHERE id = ?`,
		t.Status, t.ResultURL, t.Error, formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating generation task: %w", err)
	}
	return requireAffected(result)
}
