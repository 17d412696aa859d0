package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

// Debt repository methods
func (r *PostgresRepository) CreateDebt(ctx context.Context, debt *models.Debt) error {
	if debt.ID == "" {
		debt.ID = uuid.New().String()
	}

	ts := now()
	debt.IsPaid = false
	debt.PaidAt = nil
	debt.CreatedAt = ts
	debt.UpdatedAt = ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debts (
			id, wallet_id, currency_code, amount, debtor_name, creditor_name,
			notes, is_paid, paid_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		debt.ID, debt.WalletID, debt.CurrencyCode, debt.Amount, debt.DebtorName, debt.CreditorName,
		debt.Notes, debt.IsPaid, debt.PaidAt, debt.CreatedBy, debt.CreatedAt, debt.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetDebt(ctx context.Context, id string) (*models.Debt, error) {
	var debt models.Debt
	err := r.db.GetContext(ctx, &debt, `SELECT * FROM debts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &debt, nil
}

func (r *PostgresRepository) ListDebts(ctx context.Context, filter models.DebtFilter) ([]models.Debt, error) {
	query := `SELECT * FROM debts WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.WalletID != "" {
		query += fmt.Sprintf(" AND wallet_id = $%d", argIndex)
		args = append(args, filter.WalletID)
		argIndex++
	}

	if filter.Paid != nil {
		query += fmt.Sprintf(" AND is_paid = $%d", argIndex)
		args = append(args, *filter.Paid)
	}

	query += ` ORDER BY created_at DESC`

	debts := []models.Debt{}
	if err := r.db.SelectContext(ctx, &debts, query, args...); err != nil {
		return nil, err
	}

	return debts, nil
}

// MarkDebtPaid settles an unpaid debt. Settling twice reports ErrConflict.
func (r *PostgresRepository) MarkDebtPaid(ctx context.Context, id string) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET is_paid = TRUE, paid_at = $1, updated_at = $1 WHERE id = $2 AND is_paid = FALSE`,
		ts, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	debt, err := r.GetDebt(ctx, id)
	if err != nil {
		return err
	}
	if debt == nil {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

func (r *PostgresRepository) DeleteDebt(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return expectAffected(res)
}
