package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/api/testutils"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletDepositWithdraw(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	manager := testCtx.CreateUser(t, "manager", models.RoleManager)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/wallets",
		models.CreateWalletRequest{Name: "Till", Currencies: []string{"usd"}}, testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created walletResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	walletID := created.Wallet.ID

	deposit := models.WalletAmountRequest{CurrencyCode: "USD", Amount: decimal.NewFromInt(40)}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/wallets/"+walletID+"/deposit", deposit,
		testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/wallets/"+walletID+"/deposit", deposit,
		testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	overdraw := models.WalletAmountRequest{CurrencyCode: "USD", Amount: decimal.NewFromInt(41)}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/wallets/"+walletID+"/withdraw", overdraw,
		testutils.AuthHeaders(manager.Token))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", testutils.DecodeJSON(t, w)["code"])

	withdraw := models.WalletAmountRequest{CurrencyCode: "USD", Amount: decimal.NewFromInt(15)}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/wallets/"+walletID+"/withdraw", withdraw,
		testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var after walletResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.True(t, decimal.NewFromInt(25).Equal(after.Wallet.Balances["USD"]))
}

func TestDebts(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)
	wallet := testCtx.CreateTreasury(t, "USD", "0")
	headers := testutils.AuthHeaders(cashier.Token)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts", models.CreateDebtRequest{
		WalletID:     "missing",
		CurrencyCode: "USD",
		Amount:       decimal.NewFromInt(10),
		DebtorName:   "Sam",
		CreditorName: "Desk",
	}, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts", models.CreateDebtRequest{
		WalletID:     wallet.ID,
		CurrencyCode: "usd",
		Amount:       decimal.NewFromInt(10),
		DebtorName:   "Sam",
		CreditorName: "Desk",
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Debt models.Debt `json:"debt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "USD", created.Debt.CurrencyCode)
	assert.False(t, created.Debt.IsPaid)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/debts?paid=false", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["debts"], 1)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/debts?paid=maybe", nil, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts/"+created.Debt.ID+"/pay", nil, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, testutils.DecodeJSON(t, w)["debt"].(map[string]interface{})["isPaid"])

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts/"+created.Debt.ID+"/pay", nil, headers)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/debts?paid=false", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["debts"], 0)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/debts/"+created.Debt.ID, nil, headers)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/debts/"+created.Debt.ID, nil, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebtWritesForbiddenForOtherCashiers(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	creator := testCtx.CreateUser(t, "cashier", models.RoleCashier)
	other := testCtx.CreateUser(t, "other", models.RoleCashier)
	wallet := testCtx.CreateTreasury(t, "USD", "0")

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts", models.CreateDebtRequest{
		WalletID:     wallet.ID,
		CurrencyCode: "USD",
		Amount:       decimal.NewFromInt(10),
		DebtorName:   "Sam",
		CreditorName: "Desk",
	}, testutils.AuthHeaders(creator.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Debt models.Debt `json:"debt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/debts/"+created.Debt.ID+"/pay", nil,
		testutils.AuthHeaders(other.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/debts/"+created.Debt.ID, nil,
		testutils.AuthHeaders(other.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/debts?paid=false", nil,
		testutils.AuthHeaders(creator.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["debts"], 1)
}

func TestRecordTransaction(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)
	other := testCtx.CreateUser(t, "other", models.RoleCashier)
	treasurer := testCtx.CreateUser(t, "treasurer", models.RoleTreasurer)
	wallet := testCtx.CreateTreasury(t, "EUR", "1000")

	buy := models.RecordTransactionRequest{
		WalletID:     wallet.ID,
		Type:         models.TransactionBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.NewFromInt(100),
		Rate:         decimal.RequireFromString("0.9"),
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", buy,
		testutils.AuthHeaders(treasurer.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", buy,
		testutils.AuthHeaders(cashier.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, decimal.NewFromInt(90).Equal(created.Transaction.ToAmount))

	// Paying out more than the wallet holds
	tooBig := buy
	tooBig.FromAmount = decimal.NewFromInt(5000)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", tooBig,
		testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	same := buy
	same.ToCurrency = "usd"
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", same,
		testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Cashiers only see their own transactions; treasurers see all
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions", nil, testutils.AuthHeaders(other.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["transactions"], 0)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions", nil, testutils.AuthHeaders(treasurer.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["transactions"], 1)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions?from=yesterday", nil,
		testutils.AuthHeaders(treasurer.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions/analysis", nil,
		testutils.AuthHeaders(cashier.Token))
	require.Equal(t, http.StatusOK, w.Code)
	pairs := testutils.DecodeJSON(t, w)["pairs"].([]interface{})
	require.Len(t, pairs, 1)
	pair := pairs[0].(map[string]interface{})
	assert.Equal(t, "EUR/USD", pair["pair"])
	assert.EqualValues(t, 1, pair["count"])
}

func TestManagerPrices(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	manager := testCtx.CreateUser(t, "manager", models.RoleManager)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)

	set := models.SetManagerPriceRequest{
		FromCurrency: "usd",
		ToCurrency:   "eur",
		BuyRate:      decimal.RequireFromString("0.91"),
		SellRate:     decimal.RequireFromString("0.93"),
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/prices", set, testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/prices/USD/EUR", nil, testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/prices", set, testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/prices/usd/eur", nil, testutils.AuthHeaders(cashier.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Price models.ManagerPrice `json:"price"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "USD", got.Price.FromCurrency)
	assert.True(t, decimal.RequireFromString("0.93").Equal(got.Price.SellRate))

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/prices", nil, testutils.AuthHeaders(cashier.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutils.DecodeJSON(t, w)["prices"], 1)
}

func TestDashboard(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	treasurer := testCtx.CreateUser(t, "treasurer", models.RoleTreasurer)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)
	wallet := testCtx.CreateTreasury(t, "USD", "300")

	giveCustody(t, testCtx, treasurer.Token, models.GiveCustodyRequest{
		CashierID:    cashier.ID,
		WalletID:     wallet.ID,
		CurrencyCode: "USD",
		Amount:       decimal.NewFromInt(30),
	})

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/dashboard", nil, testutils.AuthHeaders(cashier.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary models.DashboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 1, summary.PendingCustody)
	assert.Equal(t, 1, summary.UnreadNotifications)
}
