package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/services"
	"github.com/stretchr/testify/assert"
)

type stubAuthenticator struct {
	loginErr  error
	logoutErr error
	refreshed []string
}

func (s *stubAuthenticator) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	branch := uint(2)
	return &services.LoginResult{
		Token: "jwt",
		User:  models.UserResponse{ID: 4, Email: email, Role: models.RoleOfficer, BranchID: &branch},
	}, nil
}

func (s *stubAuthenticator) RefreshToken(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
	s.refreshed = append(s.refreshed, refreshToken)
	return nil, services.ErrTokenExpired
}

func (s *stubAuthenticator) Logout(ctx context.Context, refreshToken string) error {
	return s.logoutErr
}

func newAuthRouter(auth Authenticator, ping func(ctx context.Context) error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(auth)
	r.GET("/health", NewHealthHandler(ping).Index)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	return r
}

func TestHealthHandler(t *testing.T) {
	r := newAuthRouter(&stubAuthenticator{}, func(ctx context.Context) error { return nil })
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)

	r = newAuthRouter(&stubAuthenticator{}, func(ctx context.Context) error { return errors.New("dial tcp: refused") })
	w = serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unavailable"`)
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"success", `{"email": "ana@example.com", "password": "secret123"}`, nil, http.StatusOK},
		{"missing password", `{"email": "ana@example.com"}`, nil, http.StatusBadRequest},
		{"bad email", `{"email": "ana", "password": "secret123"}`, nil, http.StatusBadRequest},
		{"wrong password", `{"email": "ana@example.com", "password": "nope"}`, services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"inactive account", `{"email": "ana@example.com", "password": "secret123"}`, services.ErrAccountInactive, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(&stubAuthenticator{loginErr: tt.err}, nil)
			w := serve(r, http.MethodPost, "/auth/login", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthHandler_RefreshAndLogout(t *testing.T) {
	auth := &stubAuthenticator{logoutErr: errors.New("token store down")}
	r := newAuthRouter(auth, nil)

	w := serve(r, http.MethodPost, "/auth/refresh", `{"refresh_token": "abc"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, []string{"abc"}, auth.refreshed)

	w = serve(r, http.MethodPost, "/auth/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Logout answers 200 even when revocation fails
	w = serve(r, http.MethodPost, "/auth/logout", `{"refresh_token": "abc"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/auth/logout", ``)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
