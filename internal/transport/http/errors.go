package http

import (
	"errors"
	"net/http"

	"live-quiz-service/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// classify maps a use-case error to an HTTP status and a stable kind for clients.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrPermission):
		return http.StatusForbidden, "permission"
	case errors.Is(err, domain.ErrSessionEnded):
		return http.StatusConflict, "session_ended"
	case errors.Is(err, domain.ErrDeleteFailed):
		return http.StatusInternalServerError, "delete_failed"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, kind := classify(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: kind})
}
