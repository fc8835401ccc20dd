package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/transport/http/middleware"
)

type profileService interface {
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// ProfileHandler exposes the /api/UserProfile endpoints for the signed-in user.
type ProfileHandler struct {
	profiles profileService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles profileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// RegisterRoutes binds the profile routes behind the authenticated policy.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuthenticated())
	r.GET("/Get", h.get)
	r.POST("/Upsert", h.upsert)
}

func (h *ProfileHandler) get(c *gin.Context) {
	userID, _ := middleware.GetAuthenticatedUserID(c)

	profile, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Error retrieving user profile.")
		return
	}
	respond(c, http.StatusOK, "User profile retrieved.", profile)
}

func (h *ProfileHandler) upsert(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid profile payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	userID, _ := middleware.GetAuthenticatedUserID(c)
	profile, err := h.profiles.Upsert(c.Request.Context(), domain.UserProfile{
		UserID:          userID,
		LastPageVisited: req.LastPageVisited,
		IsNavOpen:       req.IsNavOpen,
		IsNavMinified:   req.IsNavMinified,
		Count:           req.Count,
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Error saving user profile.")
		return
	}
	respond(c, http.StatusOK, "User profile saved.", profile)
}
