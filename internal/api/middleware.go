package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/service"
	"go.uber.org/zap"
)

const userIDKey = "userId"

// JWTSecretMiddleware makes the signing secret available to AuthMiddleware
func JWTSecretMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		c.Set("jwtSecret", key)
		c.Next()
	}
}

// AuthMiddleware returns a Gin middleware for authentication
func AuthMiddleware() gin.HandlerFunc {
	return authMiddleware(false)
}

// QueryTokenAuthMiddleware also accepts the token as a "token" query
// parameter, for WebSocket clients that cannot set headers.
func QueryTokenAuthMiddleware() gin.HandlerFunc {
	return authMiddleware(true)
}

func authMiddleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""

		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		switch {
		case authHeader != "":
			// Check if the Authorization header starts with "Bearer "
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				abortUnauthorized(c, "Invalid token format")
				return
			}
			tokenString = parts[1]
		case allowQuery && c.Query("token") != "":
			tokenString = c.Query("token")
		default:
			abortUnauthorized(c, "Authentication required")
			return
		}

		jwtSecret := c.MustGet("jwtSecret").([]byte)
		userID, err := service.ParseToken(jwtSecret, tokenString)
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		// Set user ID in the context
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHORIZED",
		Message: message,
	})
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		}
		if userID := c.GetString(userIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}
