package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/lendcore-api/internal/services"
	"github.com/sjperalta/lendcore-api/pkg/logger"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports liveness together with database reachability
type HealthHandler struct {
	ping func(ctx context.Context) error
}

func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// @Summary Health Check
// @Description Reports whether the API and its database are reachable
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Index(c *gin.Context) {
	status, database := http.StatusOK, "ok"
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			logger.Error("Health check: database unreachable", "error", err)
			status, database = http.StatusServiceUnavailable, "unavailable"
		}
	}

	c.JSON(status, gin.H{
		"service":  "lendcore-api",
		"version":  "1.0.0",
		"database": database,
	})
}

// Authenticator issues and revokes staff sessions
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

type AuthHandler struct {
	auth Authenticator
}

func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary Login
// @Description Exchanges staff credentials for an access token scoped to the user's role and branch
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login Credentials"
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrAccountInactive) {
			logger.Warn("Login rejected", "email", req.Email, "ip", c.ClientIP(), "reason", err.Error())
		}
		respondError(c, err)
		return
	}

	logger.Info("Login",
		"user_id", result.User.ID,
		"role", result.User.Role,
		"ip", c.ClientIP(),
	)
	c.JSON(http.StatusOK, result)
}

// @Summary Refresh Token
// @Description Rotates a refresh token: the presented token is consumed and a new pair issued
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh Token"
// @Success 200 {object} services.LoginResult
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := bindRefreshToken(c)
	if !ok {
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Logout
// @Description Revokes a refresh token. Always succeeds so clients can drop local state.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh Token"
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := bindRefreshToken(c)
	if !ok {
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		logger.Warn("Logout failed", "error", err, "ip", c.ClientIP())
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func bindRefreshToken(c *gin.Context) (string, bool) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token is required"})
		return "", false
	}
	return req.RefreshToken, true
}
