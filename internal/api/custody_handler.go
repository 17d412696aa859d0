package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

func (h *Handler) GiveCustody(c *gin.Context) {
	var req models.GiveCustodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	custody, err := h.svc.Custody.Give(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "custody", custody)
}

// ListCustody accepts status, walletId and userId query filters
func (h *Handler) ListCustody(c *gin.Context) {
	filter := models.CustodyFilter{
		UserID:   c.Query("userId"),
		Status:   models.CustodyStatus(c.Query("status")),
		WalletID: c.Query("walletId"),
	}

	records, err := h.svc.Custody.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "custody", records)
}

func (h *Handler) GetCustody(c *gin.Context) {
	custody, err := h.svc.Custody.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "custody", custody)
}

func (h *Handler) CustodyHoldings(c *gin.Context) {
	holdings, err := h.svc.Custody.Holdings(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "holdings", holdings)
}

// CustodyTotals sums custody per wallet for ?status=, approved by default
func (h *Handler) CustodyTotals(c *gin.Context) {
	status := models.CustodyStatus(c.DefaultQuery("status", string(models.CustodyApproved)))

	totals, err := h.svc.Custody.Totals(c.Request.Context(), currentUser(c), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "totals", totals)
}

func (h *Handler) CustodyReconciliation(c *gin.Context) {
	lines, err := h.svc.Custody.Reconciliation(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "lines", lines)
}

func (h *Handler) ApproveCustody(c *gin.Context) {
	custody, err := h.svc.Custody.Approve(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "custody", custody)
}

func (h *Handler) RejectCustody(c *gin.Context) {
	var req models.RejectCustodyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	custody, err := h.svc.Custody.Reject(c.Request.Context(), currentUser(c), c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "custody", custody)
}

func (h *Handler) ReturnCustody(c *gin.Context) {
	custody, err := h.svc.Custody.MarkReturned(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "custody", custody)
}
