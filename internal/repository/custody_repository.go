package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

// CreateCustody debits the treasury wallet, records the custody and queues the
// cashier's notification as one unit. Nothing is written if any step fails.
func (r *PostgresRepository) CreateCustody(
	ctx context.Context,
	custody *models.CashCustody,
	notification *models.Notification,
) error {
	if custody.ID == "" {
		custody.ID = uuid.New().String()
	}

	ts := now()
	custody.Status = models.CustodyPending
	custody.IsReturned = false
	custody.CreatedAt = ts
	custody.UpdatedAt = ts

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := debitTx(ctx, tx, custody.WalletID, custody.CurrencyCode, custody.Amount); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO cash_custody (
				id, treasurer_id, cashier_id, wallet_id, currency_code, amount, status,
				is_returned, notes, previous_custody_id, request_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			custody.ID, custody.TreasurerID, custody.CashierID, custody.WalletID, custody.CurrencyCode,
			custody.Amount, custody.Status, custody.IsReturned, custody.Notes, custody.PreviousCustodyID,
			custody.RequestID, custody.CreatedAt, custody.UpdatedAt)
		if err != nil {
			return translateError(err)
		}

		if notification == nil {
			return nil
		}
		notification.ReferenceID = &custody.ID
		return insertNotification(ctx, tx, notification)
	})
}

func (r *PostgresRepository) GetCustody(ctx context.Context, id string) (*models.CashCustody, error) {
	var custody models.CashCustody
	err := r.db.GetContext(ctx, &custody, `SELECT * FROM cash_custody WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Custody not found
		}
		return nil, err
	}

	return &custody, nil
}

func (r *PostgresRepository) GetCustodyByRequestID(ctx context.Context, requestID string) (*models.CashCustody, error) {
	var custody models.CashCustody
	err := r.db.GetContext(ctx, &custody, `SELECT * FROM cash_custody WHERE request_id = $1`, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &custody, nil
}

func (r *PostgresRepository) ListCustody(ctx context.Context, filter models.CustodyFilter) ([]models.CashCustody, error) {
	query := `SELECT * FROM cash_custody WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND (treasurer_id = $%d OR cashier_id = $%d)", argIndex, argIndex)
		args = append(args, filter.UserID)
		argIndex++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}

	if filter.WalletID != "" {
		query += fmt.Sprintf(" AND wallet_id = $%d", argIndex)
		args = append(args, filter.WalletID)
	}

	query += ` ORDER BY created_at DESC`

	records := []models.CashCustody{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, err
	}

	return records, nil
}

// TransitionCustody applies a compare-and-swap status change. If the record has
// already left t.From the call fails with ErrInvalidTransition and nothing is written.
// The request notifications closed by t.ResolveRequest are returned.
func (r *PostgresRepository) TransitionCustody(
	ctx context.Context,
	t CustodyTransition,
) (*models.CashCustody, []models.Notification, error) {
	var custody models.CashCustody
	resolved := []models.Notification{}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &custody, `
			UPDATE cash_custody
			SET status = $1,
				is_returned = is_returned OR $2,
				notes = CASE
					WHEN $3 = '' THEN notes
					WHEN notes = '' THEN $3
					ELSE notes || E'\n' || $3
				END,
				updated_at = $4
			WHERE id = $5 AND status = $6
			RETURNING *
		`, t.To, t.MarkReturned, t.AppendNotes, now(), t.CustodyID, t.From)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM cash_custody WHERE id = $1)`, t.CustodyID); err != nil {
				return err
			}
			if !exists {
				return models.ErrNotFound
			}
			return models.ErrInvalidTransition
		}
		if err != nil {
			return translateError(err)
		}

		if t.CreditTreasury {
			if _, err := creditTx(ctx, tx, custody.WalletID, custody.CurrencyCode, custody.Amount); err != nil {
				return err
			}
		}

		if t.ResolveRequest {
			if err := tx.SelectContext(ctx, &resolved, `
				UPDATE notifications
				SET action_taken = TRUE, is_read = TRUE, updated_at = $1
				WHERE reference_id = $2 AND type = $3 AND action_taken = FALSE
				RETURNING *
			`, now(), custody.ID, models.NotificationCustodyRequest); err != nil {
				return err
			}
		}

		if t.Notification != nil {
			t.Notification.ReferenceID = &custody.ID
			return insertNotification(ctx, tx, t.Notification)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &custody, resolved, nil
}
