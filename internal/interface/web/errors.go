package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is logged and reported as a generic internal
// failure, never with its underlying detail.
func writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   validationErr.Error(),
			Details: validationErr.Reasons,
		})
		return
	}

	var authErr *domain.AuthorizationError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusForbidden, errorResponse{Error: authErr.Error()})
		return
	}

	var notFoundErr *domain.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, errorResponse{Error: notFoundErr.Error()})
		return
	}

	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, errorResponse{Error: conflictErr.Error()})
		return
	}

	log.WithError(err).Error("unexpected error while handling request")
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
