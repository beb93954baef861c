package handlers

import (
	"errors"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/lendcore-api/internal/services"
	"github.com/sjperalta/lendcore-api/pkg/logger"
)

// retryAfterSeconds is advertised on 503 responses for lock conflicts
const retryAfterSeconds = "1"

// respondError maps service errors to HTTP responses. Anything unknown is a
// 500 and is reported to Sentry when a hub is attached to the request.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)

	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", retryAfterSeconds)
		logger.Warn("Request hit a transient conflict", "path", c.FullPath(), "error", err)
	case http.StatusInternalServerError:
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrLoanNotFound),
		errors.Is(err, services.ErrRepaymentNotFound),
		errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidMethod),
		errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidLoanState),
		errors.Is(err, services.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrEditWindowExpired):
		return http.StatusForbidden
	case errors.Is(err, services.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrAccountInactive):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
