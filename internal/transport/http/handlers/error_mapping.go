package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-service/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Domain errors always render their description with 400. Unmapped errors are attached to the
// gin context so the access log and the request span record them.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			respondError(c, cs.Status, cs.Message)
			return
		}
	}

	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		respondError(c, http.StatusBadRequest, domainErr.Description)
		return
	}

	_ = c.Error(err)
	respondError(c, fallbackStatus, fallbackMessage)
}

// respondValidationError renders binding and validation failures as 400.
func respondValidationError(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, err.Error())
}
