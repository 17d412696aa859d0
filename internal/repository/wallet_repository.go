package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
)

// Wallet repository methods
func (r *PostgresRepository) CreateWallet(ctx context.Context, wallet *models.Wallet, currencies []string) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}

	ts := now()
	wallet.CreatedAt = ts
	wallet.UpdatedAt = ts
	wallet.Balances = make(map[string]decimal.Decimal, len(currencies))

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (id, name, is_treasury, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, wallet.ID, wallet.Name, wallet.IsTreasury, wallet.CreatedBy, wallet.CreatedAt, wallet.UpdatedAt)
		if err != nil {
			return translateError(err)
		}

		for _, code := range currencies {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO wallet_currencies (wallet_id, currency_code, balance, updated_at)
				VALUES ($1, $2, 0, $3)
				ON CONFLICT (wallet_id, currency_code) DO NOTHING
			`, wallet.ID, code, ts)
			if err != nil {
				return translateError(err)
			}
			wallet.Balances[code] = decimal.Zero
		}

		return nil
	})
}

func (r *PostgresRepository) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.GetContext(ctx, &wallet, `SELECT * FROM wallets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Wallet not found
		}
		return nil, err
	}

	var balances []models.WalletCurrency
	err = r.db.SelectContext(ctx, &balances, `SELECT * FROM wallet_currencies WHERE wallet_id = $1`, id)
	if err != nil {
		return nil, err
	}

	wallet.Balances = make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		wallet.Balances[b.CurrencyCode] = b.Balance
	}

	return &wallet, nil
}

func (r *PostgresRepository) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	wallets := []models.Wallet{}
	if err := r.db.SelectContext(ctx, &wallets, `SELECT * FROM wallets ORDER BY created_at ASC`); err != nil {
		return nil, err
	}

	var balances []models.WalletCurrency
	if err := r.db.SelectContext(ctx, &balances, `SELECT * FROM wallet_currencies`); err != nil {
		return nil, err
	}

	byWallet := make(map[string]map[string]decimal.Decimal)
	for _, b := range balances {
		if byWallet[b.WalletID] == nil {
			byWallet[b.WalletID] = make(map[string]decimal.Decimal)
		}
		byWallet[b.WalletID][b.CurrencyCode] = b.Balance
	}

	for i := range wallets {
		wallets[i].Balances = byWallet[wallets[i].ID]
		if wallets[i].Balances == nil {
			wallets[i].Balances = map[string]decimal.Decimal{}
		}
	}

	return wallets, nil
}

// AdjustBalance adds delta (which may be negative) to a wallet balance and returns the new balance
func (r *PostgresRepository) AdjustBalance(
	ctx context.Context,
	walletID string,
	currencyCode string,
	delta decimal.Decimal,
) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if delta.IsNegative() {
			balance, err = debitTx(ctx, tx, walletID, currencyCode, delta.Neg())
		} else {
			balance, err = creditTx(ctx, tx, walletID, currencyCode, delta)
		}
		return err
	})

	return balance, err
}

func (r *PostgresRepository) Transfer(
	ctx context.Context,
	fromWalletID string,
	toWalletID string,
	currencyCode string,
	amount decimal.Decimal,
) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := debitTx(ctx, tx, fromWalletID, currencyCode, amount); err != nil {
			return err
		}
		_, err := creditTx(ctx, tx, toWalletID, currencyCode, amount)
		return err
	})
}

// debitTx subtracts amount from a balance, refusing to take it below zero
func debitTx(ctx context.Context, tx *sqlx.Tx, walletID, currencyCode string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE wallet_currencies
		SET balance = balance - $1, updated_at = $2
		WHERE wallet_id = $3 AND currency_code = $4 AND balance >= $1
		RETURNING balance
	`, amount, now(), walletID, currencyCode)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, translateError(err)
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, walletID); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, models.ErrNotFound
	}

	return decimal.Zero, models.ErrInsufficientBalance
}

// creditTx adds amount to a balance, creating the currency row on first use
func creditTx(ctx context.Context, tx *sqlx.Tx, walletID, currencyCode string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		INSERT INTO wallet_currencies (wallet_id, currency_code, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_id, currency_code)
		DO UPDATE SET balance = wallet_currencies.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, walletID, currencyCode, amount, now())
	if err != nil {
		return decimal.Zero, translateError(err)
	}

	return balance, nil
}
