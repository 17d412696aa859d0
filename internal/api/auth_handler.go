package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Auth.SignUp(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Auth.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.Users.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "user", user)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.Users.ListUsers(c.Request.Context(), c.Query("role"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "users", users)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.svc.Users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "user", user)
}

func (h *Handler) AssignRole(c *gin.Context) {
	var req models.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.svc.Users.AssignRoleToUser(c.Request.Context(), currentUser(c), c.Param("id"), req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "user", user)
}

func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.svc.Users.ListRoles(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, "roles", roles)
}

func (h *Handler) CreateRole(c *gin.Context) {
	var req models.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.svc.Users.CreateRole(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, "role", role)
}

func (h *Handler) Dashboard(c *gin.Context) {
	summary, err := h.svc.Dashboard.Summary(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
