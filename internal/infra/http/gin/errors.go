package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/queries"
	"stayhub/internal/domain/auth"
	"stayhub/internal/domain/shared/apperr"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrPersistenceRace):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, commands.ErrNilBus), errors.Is(err, queries.ErrNilBus):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status of its kind. Unclassified errors are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if kind := apperr.Kind(err); kind != "" {
		body["kind"] = kind
	}
	if apperr.Retryable(err) {
		body["retryable"] = true
	}
	if status >= http.StatusInternalServerError {
		body = gin.H{"error": "internal error"}
	}
	if logger != nil {
		fields := []any{"op", op, "status", status, "error", err, "path", c.FullPath()}
		if p, ok := currentPrincipal(c); ok {
			fields = append(fields, "user_id", p.UserID)
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
	}
	c.JSON(status, body)
}
