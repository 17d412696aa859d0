package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

// ListNotifications returns the caller's notifications, newest first. ?unread=true filters.
func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.svc.Notifications.List(c.Request.Context(), currentUser(c), unreadOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "notifications", notifications)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.svc.Notifications.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CountResponse{Status: "success", Count: count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "message", "Notification marked as read")
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	count, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CountResponse{Status: "success", Count: count})
}

func (h *Handler) TakeAction(c *gin.Context) {
	var req models.NotificationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	notification, err := h.svc.Notifications.TakeAction(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "notification", notification)
}
