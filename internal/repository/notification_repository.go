package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

var emptyActionData = types.JSONText("{}")

func insertNotification(ctx context.Context, exec sqlx.ExecerContext, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if len(n.ActionData) == 0 {
		n.ActionData = emptyActionData
	}

	ts := now()
	n.CreatedAt = ts
	n.UpdatedAt = ts

	_, err := exec.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, type, title, message, reference_id, is_read,
			requires_action, action_taken, action_data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ReferenceID, n.IsRead,
		n.RequiresAction, n.ActionTaken, n.ActionData, n.CreatedAt, n.UpdatedAt)

	return translateError(err)
}

// Notification repository methods
func (r *PostgresRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return insertNotification(ctx, r.db, notification)
}

func (r *PostgresRepository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &n, nil
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	notifications := []models.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID)
	return count, err
}

func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = $1 WHERE id = $2 AND user_id = $3`,
		now(), id, userID)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = $1 WHERE user_id = $2 AND is_read = FALSE`,
		now(), userID)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

// MarkNotificationActioned flips action_taken once; a second call reports ErrConflict
func (r *PostgresRepository) MarkNotificationActioned(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET action_taken = TRUE, is_read = TRUE, updated_at = $1
		WHERE id = $2 AND action_taken = FALSE
	`, now(), id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrConflict
	}
	return nil
}
