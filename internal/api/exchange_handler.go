package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

// Debts
func (h *Handler) ListDebts(c *gin.Context) {
	filter := models.DebtFilter{WalletID: c.Query("walletId")}
	if raw := c.Query("paid"); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid paid filter: %q", raw))
			return
		}
		filter.Paid = &paid
	}

	debts, err := h.svc.Debts.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "debts", debts)
}

func (h *Handler) CreateDebt(c *gin.Context) {
	var req models.CreateDebtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	debt, err := h.svc.Debts.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "debt", debt)
}

func (h *Handler) PayDebt(c *gin.Context) {
	debt, err := h.svc.Debts.MarkPaid(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "debt", debt)
}

func (h *Handler) DeleteDebt(c *gin.Context) {
	if err := h.svc.Debts.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transactions

// transactionFilter reads walletId, cashierId and RFC 3339 from/to bounds
func transactionFilter(c *gin.Context) (models.TransactionFilter, error) {
	filter := models.TransactionFilter{
		WalletID:  c.Query("walletId"),
		CashierID: c.Query("cashierId"),
	}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s time: %q", key, raw)
		}
		*dst = &t
	}
	return filter, nil
}

func (h *Handler) ListTransactions(c *gin.Context) {
	filter, err := transactionFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	txns, err := h.svc.Exchange.ListTransactions(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "transactions", txns)
}

func (h *Handler) RecordTransaction(c *gin.Context) {
	var req models.RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := h.svc.Exchange.RecordTransaction(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "transaction", txn)
}

func (h *Handler) TransactionAnalysis(c *gin.Context) {
	filter, err := transactionFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	pairs, err := h.svc.Exchange.Analysis(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "pairs", pairs)
}

// Manager prices
func (h *Handler) ListPrices(c *gin.Context) {
	prices, err := h.svc.Exchange.ListManagerPrices(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "prices", prices)
}

func (h *Handler) SetPrice(c *gin.Context) {
	var req models.SetManagerPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	price, err := h.svc.Exchange.SetManagerPrice(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "price", price)
}

func (h *Handler) GetPrice(c *gin.Context) {
	price, err := h.svc.Exchange.GetManagerPrice(c.Request.Context(), c.Param("from"), c.Param("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "price", price)
}
