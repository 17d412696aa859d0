package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Role names seeded by the initial migration
const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleTreasurer = "treasurer"
	RoleCashier   = "cashier"
)

// CustodyStatus is the lifecycle state of a cash custody record
type CustodyStatus string

const (
	CustodyPending  CustodyStatus = "pending"
	CustodyApproved CustodyStatus = "approved"
	CustodyRejected CustodyStatus = "rejected"
	CustodyReturned CustodyStatus = "returned"
)

// Valid reports whether s is one of the four custody states
func (s CustodyStatus) Valid() bool {
	switch s {
	case CustodyPending, CustodyApproved, CustodyRejected, CustodyReturned:
		return true
	}
	return false
}

// Notification types
const (
	NotificationCustodyRequest   = "custody_request"
	NotificationCustodyApproval  = "custody_approval"
	NotificationCustodyRejection = "custody_rejection"
	NotificationCustodyReturn    = "custody_return"
)

// Notification actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// TransactionType is the direction of a cashier exchange
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// User represents a user in the system.
// RoleID references roles; RoleName is the cached label kept in step with it.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	RoleID    *string   `db:"role_id" json:"roleId,omitempty"`
	RoleName  string    `db:"role_name" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// HasRole reports whether the user holds any of the given roles
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.RoleName == r {
			return true
		}
	}
	return false
}

// IsManager reports whether the user may administer roles, wallets and prices
func (u *User) IsManager() bool {
	return u.HasRole(RoleManager, RoleAdmin)
}

// Role is a named permission bundle
type Role struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Permissions pq.StringArray `db:"permissions" json:"permissions"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// CurrencyType is a currency the desk trades in
type CurrencyType struct {
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Symbol    string    `db:"symbol" json:"symbol"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Wallet is a named balance container. Balances is filled from wallet_currencies.
type Wallet struct {
	ID         string                     `db:"id" json:"id"`
	Name       string                     `db:"name" json:"name"`
	IsTreasury bool                       `db:"is_treasury" json:"isTreasury"`
	CreatedBy  string                     `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time                  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time                  `db:"updated_at" json:"updatedAt"`
	Balances   map[string]decimal.Decimal `db:"-" json:"balances"`
}

// WalletCurrency is one currency balance held by a wallet
type WalletCurrency struct {
	WalletID     string          `db:"wallet_id" json:"walletId"`
	CurrencyCode string          `db:"currency_code" json:"currencyCode"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// CashCustody records cash handed from a treasurer to a cashier
type CashCustody struct {
	ID                string          `db:"id" json:"id"`
	TreasurerID       string          `db:"treasurer_id" json:"treasurerId"`
	CashierID         string          `db:"cashier_id" json:"cashierId"`
	WalletID          string          `db:"wallet_id" json:"walletId"`
	CurrencyCode      string          `db:"currency_code" json:"currencyCode"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            CustodyStatus   `db:"status" json:"status"`
	IsReturned        bool            `db:"is_returned" json:"isReturned"`
	Notes             string          `db:"notes" json:"notes"`
	PreviousCustodyID *string         `db:"previous_custody_id" json:"previousCustodyId,omitempty"`
	RequestID         *string         `db:"request_id" json:"requestId,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// Outstanding reports whether the custody still holds treasury cash outside the treasury
func (c *CashCustody) Outstanding() bool {
	return !c.IsReturned && (c.Status == CustodyPending || c.Status == CustodyApproved)
}

// Notification is an event addressed to one user
type Notification struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"userId"`
	Type           string         `db:"type" json:"type"`
	Title          string         `db:"title" json:"title"`
	Message        string         `db:"message" json:"message"`
	ReferenceID    *string        `db:"reference_id" json:"referenceId,omitempty"`
	IsRead         bool           `db:"is_read" json:"isRead"`
	RequiresAction bool           `db:"requires_action" json:"requiresAction"`
	ActionTaken    bool           `db:"action_taken" json:"actionTaken"`
	ActionData     types.JSONText `db:"action_data" json:"actionData"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// Debt is a person-to-person IOU tied to a wallet balance
type Debt struct {
	ID           string          `db:"id" json:"id"`
	WalletID     string          `db:"wallet_id" json:"walletId"`
	CurrencyCode string          `db:"currency_code" json:"currencyCode"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	DebtorName   string          `db:"debtor_name" json:"debtorName"`
	CreditorName string          `db:"creditor_name" json:"creditorName"`
	Notes        string          `db:"notes" json:"notes"`
	IsPaid       bool            `db:"is_paid" json:"isPaid"`
	PaidAt       *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// ManagerPrice is the posted buy/sell rate for a currency pair
type ManagerPrice struct {
	FromCurrency string          `db:"from_currency" json:"fromCurrency"`
	ToCurrency   string          `db:"to_currency" json:"toCurrency"`
	BuyRate      decimal.Decimal `db:"buy_rate" json:"buyRate"`
	SellRate     decimal.Decimal `db:"sell_rate" json:"sellRate"`
	UpdatedBy    string          `db:"updated_by" json:"updatedBy"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Transaction is a cashier buy/sell exchange against a wallet
type Transaction struct {
	ID           string          `db:"id" json:"id"`
	CashierID    string          `db:"cashier_id" json:"cashierId"`
	WalletID     string          `db:"wallet_id" json:"walletId"`
	Type         TransactionType `db:"type" json:"type"`
	FromCurrency string          `db:"from_currency" json:"fromCurrency"`
	ToCurrency   string          `db:"to_currency" json:"toCurrency"`
	FromAmount   decimal.Decimal `db:"from_amount" json:"fromAmount"`
	ToAmount     decimal.Decimal `db:"to_amount" json:"toAmount"`
	Rate         decimal.Decimal `db:"rate" json:"rate"`
	Notes        string          `db:"notes" json:"notes"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// CustodyFilter narrows custody listings. Zero values mean no constraint.
type CustodyFilter struct {
	UserID   string
	Status   CustodyStatus
	WalletID string
}

// DebtFilter narrows debt listings
type DebtFilter struct {
	WalletID string
	Paid     *bool
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	CashierID string
	WalletID  string
	From      *time.Time
	To        *time.Time
}
