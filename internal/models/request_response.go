package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type CreateCurrencyRequest struct {
	Code   string `json:"code" binding:"required,min=2,max=10"`
	Name   string `json:"name" binding:"required"`
	Symbol string `json:"symbol"`
}

type CreateWalletRequest struct {
	Name       string   `json:"name" binding:"required"`
	IsTreasury bool     `json:"isTreasury"`
	Currencies []string `json:"currencies"`
}

type WalletAmountRequest struct {
	CurrencyCode string          `json:"currencyCode" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	FromWalletID string          `json:"fromWalletId" binding:"required"`
	ToWalletID   string          `json:"toWalletId" binding:"required"`
	CurrencyCode string          `json:"currencyCode" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
}

type GiveCustodyRequest struct {
	CashierID         string          `json:"cashierId" binding:"required"`
	WalletID          string          `json:"walletId" binding:"required"`
	CurrencyCode      string          `json:"currencyCode" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Notes             string          `json:"notes"`
	PreviousCustodyID *string         `json:"previousCustodyId"`
	RequestID         *string         `json:"requestId"`
}

type RejectCustodyRequest struct {
	Reason string `json:"reason"`
}

type NotificationActionRequest struct {
	Action string          `json:"action" binding:"required"`
	Data   json.RawMessage `json:"data"`
}

type CreateDebtRequest struct {
	WalletID     string          `json:"walletId" binding:"required"`
	CurrencyCode string          `json:"currencyCode" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	DebtorName   string          `json:"debtorName" binding:"required"`
	CreditorName string          `json:"creditorName" binding:"required"`
	Notes        string          `json:"notes"`
}

type RecordTransactionRequest struct {
	WalletID     string          `json:"walletId" binding:"required"`
	Type         TransactionType `json:"type" binding:"required,oneof=buy sell"`
	FromCurrency string          `json:"fromCurrency" binding:"required"`
	ToCurrency   string          `json:"toCurrency" binding:"required"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	Rate         decimal.Decimal `json:"rate"`
	Notes        string          `json:"notes"`
}

type SetManagerPriceRequest struct {
	FromCurrency string          `json:"fromCurrency" binding:"required"`
	ToCurrency   string          `json:"toCurrency" binding:"required"`
	BuyRate      decimal.Decimal `json:"buyRate"`
	SellRate     decimal.Decimal `json:"sellRate"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type CountResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// CurrencyTotal is an amount in one currency
type CurrencyTotal struct {
	CurrencyCode string          `json:"currencyCode"`
	Amount       decimal.Decimal `json:"amount"`
}

// WalletHolding is an amount of one currency attributed to a wallet
type WalletHolding struct {
	WalletID     string          `json:"walletId"`
	CurrencyCode string          `json:"currencyCode"`
	Amount       decimal.Decimal `json:"amount"`
}

type DashboardResponse struct {
	Status               string          `json:"status"`
	WalletTotals         []CurrencyTotal `json:"walletTotals"`
	PendingCustody       int             `json:"pendingCustody"`
	UnreadNotifications  int             `json:"unreadNotifications"`
	OutstandingDebts     []CurrencyTotal `json:"outstandingDebts"`
	CustodyHoldings      []WalletHolding `json:"custodyHoldings"`
	TransactionsRecorded int             `json:"transactionsRecorded"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
