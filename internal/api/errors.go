package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// checked in order; the first match wins
var errorMappings = []errorMapping{
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{models.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{models.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{models.ErrConflict, http.StatusConflict, "CONFLICT"},
	{models.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
	{models.ErrUnknownAction, http.StatusBadRequest, "UNKNOWN_ACTION"},
	{models.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
}

// StatusFor maps a service error to its HTTP status and error code
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := StatusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "Internal server error"
	}

	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "INVALID_INPUT",
		Message: err.Error(),
	})
}
