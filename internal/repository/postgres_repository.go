package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
)

// Repository interface defines the methods that any repository implementation must satisfy.
// Get methods return nil, nil when the row does not exist.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, roleName string) ([]models.User, error)
	// RegisterUser creates user and, when no other user exists yet, gives it firstRole
	RegisterUser(ctx context.Context, user *models.User, firstRole string) error
	SetUserRole(ctx context.Context, userID string, role *models.Role) error

	// Role operations
	CreateRole(ctx context.Context, role *models.Role) error
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)

	// Currency operations
	CreateCurrency(ctx context.Context, currency *models.CurrencyType) error
	GetCurrency(ctx context.Context, code string) (*models.CurrencyType, error)
	ListCurrencies(ctx context.Context) ([]models.CurrencyType, error)

	// Wallet operations
	CreateWallet(ctx context.Context, wallet *models.Wallet, currencies []string) error
	GetWallet(ctx context.Context, id string) (*models.Wallet, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	AdjustBalance(ctx context.Context, walletID, currencyCode string, delta decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, fromWalletID, toWalletID, currencyCode string, amount decimal.Decimal) error

	// Custody operations
	CreateCustody(ctx context.Context, custody *models.CashCustody, notification *models.Notification) error
	GetCustody(ctx context.Context, id string) (*models.CashCustody, error)
	GetCustodyByRequestID(ctx context.Context, requestID string) (*models.CashCustody, error)
	ListCustody(ctx context.Context, filter models.CustodyFilter) ([]models.CashCustody, error)
	TransitionCustody(ctx context.Context, t CustodyTransition) (*models.CashCustody, []models.Notification, error)

	// Notification operations
	CreateNotification(ctx context.Context, notification *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	MarkNotificationActioned(ctx context.Context, id string) error

	// Debt operations
	CreateDebt(ctx context.Context, debt *models.Debt) error
	GetDebt(ctx context.Context, id string) (*models.Debt, error)
	ListDebts(ctx context.Context, filter models.DebtFilter) ([]models.Debt, error)
	MarkDebtPaid(ctx context.Context, id string) error
	DeleteDebt(ctx context.Context, id string) error

	// Exchange operations
	UpsertManagerPrice(ctx context.Context, price *models.ManagerPrice) error
	GetManagerPrice(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error)
	ListManagerPrices(ctx context.Context) ([]models.ManagerPrice, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

// CustodyTransition describes a guarded status change of a custody record.
// The update only applies while the record is still in From.
type CustodyTransition struct {
	CustodyID string
	From      models.CustodyStatus
	To        models.CustodyStatus
	// AppendNotes is added to the record's notes on its own line
	AppendNotes string
	// MarkReturned sets is_returned
	MarkReturned bool
	// CreditTreasury puts the custody amount back into its wallet
	CreditTreasury bool
	// ResolveRequest closes the open custody_request notification for the record
	ResolveRequest bool
	// Notification is written in the same transaction when set
	Notification *models.Notification
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// translateError maps Postgres constraint violations onto model errors
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", models.ErrAlreadyExists, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", models.ErrInvalidInput, pqErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", models.ErrInvalidInput, pqErr.Constraint)
		}
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password, role_id, role_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Password, user.RoleID, user.RoleName, user.CreatedAt, user.UpdatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, roleName string) ([]models.User, error) {
	query := `SELECT * FROM users`
	var args []interface{}

	if roleName != "" {
		query += ` WHERE role_name = $1`
		args = append(args, roleName)
	}
	query += ` ORDER BY created_at ASC`

	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}

	return users, nil
}

// RegisterUser holds a lock on users that conflicts with itself so two
// signups into an empty table cannot both see it empty.
func (r *PostgresRepository) RegisterUser(ctx context.Context, user *models.User, firstRole string) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}

		var empty bool
		if err := tx.GetContext(ctx, &empty, `SELECT NOT EXISTS (SELECT 1 FROM users)`); err != nil {
			return err
		}
		if empty {
			var role models.Role
			err := tx.GetContext(ctx, &role, `SELECT * FROM roles WHERE name = $1`, firstRole)
			switch {
			case err == nil:
				user.RoleID = &role.ID
				user.RoleName = role.Name
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, name, password, role_id, role_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, user.ID, user.Email, user.Name, user.Password, user.RoleID, user.RoleName, user.CreatedAt, user.UpdatedAt)
		return err
	})
	return translateError(err)
}

// SetUserRole writes the role reference and its cached label in one statement
func (r *PostgresRepository) SetUserRole(ctx context.Context, userID string, role *models.Role) error {
	query := `UPDATE users SET role_id = $1, role_name = $2, updated_at = $3 WHERE id = $4`

	res, err := r.db.ExecContext(ctx, query, role.ID, role.Name, now(), userID)
	if err != nil {
		return translateError(err)
	}

	return expectAffected(res)
}

// Role repository methods
func (r *PostgresRepository) CreateRole(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (id, name, description, permissions, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.Permissions == nil {
		role.Permissions = pq.StringArray{}
	}
	role.CreatedAt = now()

	_, err := r.db.ExecContext(ctx, query, role.ID, role.Name, role.Description, role.Permissions, role.CreatedAt)
	return translateError(err)
}

func (r *PostgresRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT * FROM roles WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &role, nil
}

func (r *PostgresRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	if err := r.db.SelectContext(ctx, &roles, `SELECT * FROM roles ORDER BY name ASC`); err != nil {
		return nil, err
	}

	return roles, nil
}

// Currency repository methods
func (r *PostgresRepository) CreateCurrency(ctx context.Context, currency *models.CurrencyType) error {
	query := `
		INSERT INTO currency_types (code, name, symbol, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	currency.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, query,
		currency.Code, currency.Name, currency.Symbol, currency.IsActive, currency.CreatedAt)

	return translateError(err)
}

func (r *PostgresRepository) GetCurrency(ctx context.Context, code string) (*models.CurrencyType, error) {
	var currency models.CurrencyType
	err := r.db.GetContext(ctx, &currency, `SELECT * FROM currency_types WHERE code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &currency, nil
}

func (r *PostgresRepository) ListCurrencies(ctx context.Context) ([]models.CurrencyType, error) {
	currencies := []models.CurrencyType{}
	if err := r.db.SelectContext(ctx, &currencies, `SELECT * FROM currency_types ORDER BY code ASC`); err != nil {
		return nil, err
	}

	return currencies, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
