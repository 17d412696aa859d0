package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

func (h *Handler) ListCurrencies(c *gin.Context) {
	currencies, err := h.svc.Wallets.ListCurrencies(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "currencies", currencies)
}

func (h *Handler) CreateCurrency(c *gin.Context) {
	var req models.CreateCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	currency, err := h.svc.Wallets.CreateCurrency(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "currency", currency)
}

func (h *Handler) ListWallets(c *gin.Context) {
	wallets, err := h.svc.Wallets.ListWallets(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "wallets", wallets)
}

func (h *Handler) CreateWallet(c *gin.Context) {
	var req models.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	wallet, err := h.svc.Wallets.CreateWallet(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "wallet", wallet)
}

func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.svc.Wallets.GetWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "wallet", wallet)
}

func (h *Handler) Deposit(c *gin.Context) {
	var req models.WalletAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	wallet, err := h.svc.Wallets.Deposit(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "wallet", wallet)
}

func (h *Handler) Withdraw(c *gin.Context) {
	var req models.WalletAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	wallet, err := h.svc.Wallets.Withdraw(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "wallet", wallet)
}

func (h *Handler) Transfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.Wallets.Transfer(c.Request.Context(), currentUser(c), req); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "message", "Transfer completed")
}
