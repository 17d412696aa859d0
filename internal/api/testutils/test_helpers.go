package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/exchange-desk-server/internal/api"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/rongwang/exchange-desk-server/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const JWTSecret = "test-secret-key"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository *repository.MemoryRepository
	Services   *service.Services
	Hub        *realtime.Hub
	JWTSecret  []byte
}

// TestUser is a seeded user together with a signed token
type TestUser struct {
	ID    string
	Email string
	Token string
}

// SetupTestContext wires the router over an in-memory repository
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := repository.NewMemoryRepository()
	logger := zap.NewNop()
	hub := realtime.NewHub(logger)

	svc := service.New(repo, service.Options{
		JWTSecret: JWTSecret,
		Publisher: hub,
		Logger:    logger,
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.JWTSecretMiddleware(JWTSecret))

	api.NewHandler(svc, hub, logger).SetupRoutes(router)

	return &TestContext{
		Router:     router,
		Repository: repo,
		Services:   svc,
		Hub:        hub,
		JWTSecret:  []byte(JWTSecret),
	}
}

// CreateUser seeds a user with the given role ("" for none) and password "testpassword"
func (tc *TestContext) CreateUser(t *testing.T, name, role string) TestUser {
	t.Helper()
	ctx := context.Background()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:    name + "@example.com",
		Name:     name,
		Password: string(hashedPassword),
	}
	require.NoError(t, tc.Repository.CreateUser(ctx, user))

	if role != "" {
		r, err := tc.Repository.GetRoleByName(ctx, role)
		require.NoError(t, err)
		require.NotNil(t, r, "role %s is not seeded", role)
		require.NoError(t, tc.Repository.SetUserRole(ctx, user.ID, r))
	}

	return TestUser{ID: user.ID, Email: user.Email, Token: tc.Token(t, user.ID)}
}

// Token signs a 24h token for userID
func (tc *TestContext) Token(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	tokenString, err := token.SignedString(tc.JWTSecret)
	require.NoError(t, err, "Failed to generate JWT token")
	return tokenString
}

// CreateTreasury creates a treasury wallet holding amount of currency
func (tc *TestContext) CreateTreasury(t *testing.T, currency, amount string) *models.Wallet {
	t.Helper()
	ctx := context.Background()

	wallet := &models.Wallet{Name: "Treasury", IsTreasury: true, CreatedBy: "system"}
	require.NoError(t, tc.Repository.CreateWallet(ctx, wallet, []string{currency}))
	_, err := tc.Repository.AdjustBalance(ctx, wallet.ID, currency, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return wallet
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeJSON unmarshals the response body into a generic map
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
