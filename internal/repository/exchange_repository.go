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

// Manager price repository methods
func (r *PostgresRepository) UpsertManagerPrice(ctx context.Context, price *models.ManagerPrice) error {
	price.UpdatedAt = now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO manager_prices (from_currency, to_currency, buy_rate, sell_rate, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (from_currency, to_currency)
		DO UPDATE SET buy_rate = EXCLUDED.buy_rate, sell_rate = EXCLUDED.sell_rate,
			updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, price.FromCurrency, price.ToCurrency, price.BuyRate, price.SellRate, price.UpdatedBy, price.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetManagerPrice(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error) {
	var price models.ManagerPrice
	err := r.db.GetContext(ctx, &price,
		`SELECT * FROM manager_prices WHERE from_currency = $1 AND to_currency = $2`, fromCurrency, toCurrency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &price, nil
}

func (r *PostgresRepository) ListManagerPrices(ctx context.Context) ([]models.ManagerPrice, error) {
	prices := []models.ManagerPrice{}
	err := r.db.SelectContext(ctx, &prices, `SELECT * FROM manager_prices ORDER BY from_currency, to_currency`)
	if err != nil {
		return nil, err
	}

	return prices, nil
}

// CreateTransaction books a cashier exchange: the received currency is credited,
// the paid-out currency is debited and the row is written, all or nothing.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = now()

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := creditTx(ctx, tx, txn.WalletID, txn.FromCurrency, txn.FromAmount); err != nil {
			return err
		}
		if _, err := debitTx(ctx, tx, txn.WalletID, txn.ToCurrency, txn.ToAmount); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, cashier_id, wallet_id, type, from_currency, to_currency,
				from_amount, to_amount, rate, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			txn.ID, txn.CashierID, txn.WalletID, txn.Type, txn.FromCurrency, txn.ToCurrency,
			txn.FromAmount, txn.ToAmount, txn.Rate, txn.Notes, txn.CreatedAt)

		return translateError(err)
	})
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT * FROM transactions WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.CashierID != "" {
		query += fmt.Sprintf(" AND cashier_id = $%d", argIndex)
		args = append(args, filter.CashierID)
		argIndex++
	}

	if filter.WalletID != "" {
		query += fmt.Sprintf(" AND wallet_id = $%d", argIndex)
		args = append(args, filter.WalletID)
		argIndex++
	}

	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.To)
	}

	query += ` ORDER BY created_at DESC`

	txns := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, err
	}

	return txns, nil
}
