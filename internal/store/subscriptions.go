// ABOUTME: Subscription store methods with transactional tier bookkeeping
// ABOUTME: Creating or cancelling a subscription updates the owner's tier and premium flag

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const subscriptionColumns = `id, user_id, plan, status, current_period_end, canceled_at, created_at, updated_at`

// CreateSubscription inserts an active subscription and promotes the owner to
// the plan's tier in the same transaction.
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = nowUTC()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			sub.ID,
			sub.UserID,
			sub.Plan,
			sub.Status,
			formatTimePtr(sub.CurrentPeriodEnd),
			formatTimePtr(sub.CanceledAt),
			formatTime(sub.CreatedAt),
			formatTime(sub.UpdatedAt),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("inserting subscription: %w", err)
		}

		if sub.Status == SubscriptionActive {
			if err := setUserTier(ctx, tx, sub.UserID, sub.Plan, true); err != nil {
				return err
			}
		}

		s.logger.Debug("created subscription", "id", sub.ID, "user_id", sub.UserID, "plan", sub.Plan)
		return nil
	})
}

// GetSubscription retrieves a subscription by ID.
// Returns ErrNotFound if the subscription doesn't exist.
func (s *SQLiteStore) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return scanSubscription(row)
}

// ListSubscriptionsByUser returns every subscription owned by userID, newest first.
func (s *SQLiteStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := []*Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// CancelSubscription marks an active subscription canceled. The owner keeps
// the tier of their newest remaining active subscription, or drops to free.
// Returns ErrNotFound or ErrAlreadyCanceled.
func (s *SQLiteStore) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out *Subscription
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
		sub, err := scanSubscription(row)
		if err != nil {
			return err
		}
		if sub.Status != SubscriptionActive {
			return ErrAlreadyCanceled
		}

		now := nowUTC()
		sub.Status = SubscriptionCanceled
		sub.CanceledAt = &now
		sub.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE subscriptions SET status = ?, canceled_at = ?, updated_at = ? WHERE id = ?`,
			sub.Status, formatTime(now), formatTime(now), sub.ID,
		)
		if err != nil {
			return fmt.Errorf("canceling subscription: %w", err)
		}

		var plan string
		err = tx.QueryRowContext(ctx,
			`SELECT plan FROM subscriptions WHERE user_id = ? AND status = 'active' ORDER BY created_at DESC, rowid DESC LIMIT 1`,
			sub.UserID,
		).Scan(&plan)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = setUserTier(ctx, tx, sub.UserID, TierFree, false)
		case err == nil:
			err = setUserTier(ctx, tx, sub.UserID, plan, true)
		default:
			err = fmt.Errorf("querying remaining subscriptions: %w", err)
		}
		if err != nil {
			return err
		}

		s.logger.Debug("canceled subscription", "id", sub.ID, "user_id", sub.UserID)
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func setUserTier(ctx context.Context, tx *sql.Tx, userID, tier string, premium bool) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET tier = ?, is_premium = ?, updated_at = ? WHERE id = ?`,
		tier, boolToInt(premium), formatTime(nowUTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("updating user tier: %w", err)
	}
	return requireAffected(result)
}

// withTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	var periodEnd, canceledAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Plan,
		&sub.Status,
		&periodEnd,
		&canceledAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning subscription: %w", err)
	}

	if sub.CurrentPeriodEnd, err = parseTimePtr("current_period_end", periodEnd); err != nil {
		return nil, err
	}
	if sub.CanceledAt, err = parseTimePtr("canceled_at", canceledAt); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
