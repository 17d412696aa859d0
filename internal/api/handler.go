package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/service"
	"go.uber.org/zap"
)

// Handler serves the HTTP API
type Handler struct {
	svc    *service.Services
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc *service.Services, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, logger: logger}
}

// SetupRoutes registers every route under /api. The jwtSecret context value
// must be set by an earlier middleware.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	api.GET("/healthz", h.Health)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	api.GET("/ws", QueryTokenAuthMiddleware(), h.WebSocket)

	protected := api.Group("")
	protected.Use(AuthMiddleware())
	{
		protected.GET("/me", h.Me)
		protected.GET("/dashboard", h.Dashboard)

		protected.GET("/users", h.ListUsers)
		protected.GET("/users/:id", h.GetUser)
		protected.PUT("/users/:id/role", h.AssignRole)

		protected.GET("/roles", h.ListRoles)
		protected.POST("/roles", h.CreateRole)

		protected.GET("/currencies", h.ListCurrencies)
		protected.POST("/currencies", h.CreateCurrency)

		protected.GET("/wallets", h.ListWallets)
		protected.POST("/wallets", h.CreateWallet)
		protected.POST("/wallets/transfer", h.Transfer)
		protected.GET("/wallets/:id", h.GetWallet)
		protected.POST("/wallets/:id/deposit", h.Deposit)
		protected.POST("/wallets/:id/withdraw", h.Withdraw)

		protected.POST("/custody", h.GiveCustody)
		protected.GET("/custody", h.ListCustody)
		protected.GET("/custody/holdings", h.CustodyHoldings)
		protected.GET("/custody/totals", h.CustodyTotals)
		protected.GET("/custody/reconciliation", h.CustodyReconciliation)
		protected.GET("/custody/:id", h.GetCustody)
		protected.POST("/custody/:id/approve", h.ApproveCustody)
		protected.POST("/custody/:id/reject", h.RejectCustody)
		protected.POST("/custody/:id/return", h.ReturnCustody)

		protected.GET("/notifications", h.ListNotifications)
		protected.GET("/notifications/unread-count", h.UnreadCount)
		protected.POST("/notifications/read-all", h.MarkAllRead)
		protected.POST("/notifications/:id/read", h.MarkRead)
		protected.POST("/notifications/:id/action", h.TakeAction)

		protected.GET("/debts", h.ListDebts)
		protected.POST("/debts", h.CreateDebt)
		protected.POST("/debts/:id/pay", h.PayDebt)
		protected.DELETE("/debts/:id", h.DeleteDebt)

		protected.GET("/transactions", h.ListTransactions)
		protected.POST("/transactions", h.RecordTransaction)
		protected.GET("/transactions/analysis", h.TransactionAnalysis)

		protected.GET("/prices", h.ListPrices)
		protected.PUT("/prices", h.SetPrice)
		protected.GET("/prices/:from/:to", h.GetPrice)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// WebSocket subscribes the caller to their notification events
func (h *Handler) WebSocket(c *gin.Context) {
	userID := c.GetString(userIDKey)
	if err := h.hub.ServeWS(c.Writer, c.Request, userID); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func respondOK(c *gin.Context, key string, value interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "success", key: value})
}

func respondCreated(c *gin.Context, key string, value interface{}) {
	c.JSON(http.StatusCreated, gin.H{"status": "success", key: value})
}
