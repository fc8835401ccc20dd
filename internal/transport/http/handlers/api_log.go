package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/transport/http/middleware"
	"github.com/arklim/account-service/internal/usecase"
)

type auditLogReader interface {
	List(ctx context.Context, limit int) ([]domain.ApiLogEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ApiLogEntry, error)
}

// ApiLogHandler exposes the /api/ApiLog audit endpoints. Both are admin only.
type ApiLogHandler struct {
	logs auditLogReader
}

// NewApiLogHandler constructs ApiLogHandler.
func NewApiLogHandler(logs auditLogReader) *ApiLogHandler {
	return &ApiLogHandler{logs: logs}
}

// RegisterRoutes binds the audit routes behind the admin policy.
func (h *ApiLogHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAdmin())
	r.GET("/Get", h.list)
	r.GET("/GetByUserId/:userId", h.listByUser)
}

func (h *ApiLogHandler) list(c *gin.Context) {
	entries, err := h.logs.List(c.Request.Context(), queryLimit(c))
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Error retrieving api logs.")
		return
	}
	respond(c, http.StatusOK, "Api logs retrieved.", entries)
}

func (h *ApiLogHandler) listByUser(c *gin.Context) {
	entries, err := h.logs.ListByUser(c.Request.Context(), c.Param("userId"), queryLimit(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
		}, http.StatusInternalServerError, "Error retrieving api logs.")
		return
	}
	respond(c, http.StatusOK, "Api logs retrieved.", entries)
}

// queryLimit reads ?limit; the service clamps it.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
