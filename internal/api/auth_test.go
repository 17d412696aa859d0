package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/api/testutils"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	// Test case 1: Successful signup, the first account becomes admin
	signupReq := models.SignUpRequest{
		Email:    "newuser@example.com",
		Password: "Password123",
		Name:     "New User",
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/signup", signupReq, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, models.RoleAdmin, resp.Role)

	// Test case 2: Duplicate email
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/signup", signupReq, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Invalid request (missing required fields)
	invalidReq := models.SignUpRequest{Email: "invalid@example.com"}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/signup", invalidReq, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Later accounts have no role
	second := models.SignUpRequest{Email: "second@example.com", Password: "Password123", Name: "Second"}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/signup", second, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var secondResp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &secondResp))
	assert.Empty(t, secondResp.Role)
}

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	user := testCtx.CreateUser(t, "testuser", models.RoleCashier)

	// Test case 1: Successful login
	loginReq := models.LoginRequest{Email: user.Email, Password: "testpassword"}
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login", loginReq, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.UserID)
	assert.NotEmpty(t, resp.Token)

	// The issued token opens protected routes
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/me", nil, testutils.AuthHeaders(resp.Token))
	require.Equal(t, http.StatusOK, w.Code)
	body := testutils.DecodeJSON(t, w)
	assert.Equal(t, models.RoleCashier, body["user"].(map[string]interface{})["role"])

	// Test case 2: Wrong password
	loginReq.Password = "wrongpassword"
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login", loginReq, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", testutils.DecodeJSON(t, w)["code"])

	// Test case 3: Unknown email
	loginReq.Email = "nobody@example.com"
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login", loginReq, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no header", nil},
		{"bad scheme", map[string]string{"Authorization": "Token abc"}},
		{"garbage token", testutils.AuthHeaders("not-a-jwt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/me", nil, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", testutils.DecodeJSON(t, w)["code"])
		})
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignRole(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	manager := testCtx.CreateUser(t, "manager", models.RoleManager)
	cashier := testCtx.CreateUser(t, "cashier", models.RoleCashier)
	newcomer := testCtx.CreateUser(t, "newcomer", "")

	path := "/api/users/" + newcomer.ID + "/role"

	// A cashier cannot hand out roles
	w := testutils.PerformRequest(testCtx.Router, http.MethodPut, path,
		models.AssignRoleRequest{Role: models.RoleTreasurer}, testutils.AuthHeaders(cashier.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A manager can, except for admin
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, path,
		models.AssignRoleRequest{Role: models.RoleAdmin}, testutils.AuthHeaders(manager.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, path,
		models.AssignRoleRequest{Role: models.RoleTreasurer}, testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RoleTreasurer, testutils.DecodeJSON(t, w)["user"].(map[string]interface{})["role"])

	// Unknown roles are reported as missing
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, path,
		models.AssignRoleRequest{Role: "auditor"}, testutils.AuthHeaders(manager.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Listing by role
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/users?role=treasurer", nil,
		testutils.AuthHeaders(manager.Token))
	require.Equal(t, http.StatusOK, w.Code)
	users := testutils.DecodeJSON(t, w)["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, newcomer.ID, users[0].(map[string]interface{})["id"])
}
