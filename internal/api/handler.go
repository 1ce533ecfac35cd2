// Package api holds the REST handlers of the chat workspace.
package api

import (
	"net/http"

	"oficiogen/backend/internal/chat"
	"oficiogen/backend/pkg/errors"
	"oficiogen/backend/pkg/jwt"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves profile, session, gate and subscription endpoints
type Handler struct {
	registry   *chat.Registry
	jwtService *jwt.Service
	logger     *logger.Logger
}

// NewHandler creates a new handler
func NewHandler(registry *chat.Registry, jwtService *jwt.Service, logger *logger.Logger) *Handler {
	return &Handler{
		registry:   registry,
		jwtService: jwtService,
		logger:     logger,
	}
}

// RegisterRoutesV1 registers the public and profile-scoped routes.
// sendLimit is applied to message submission only.
func (h *Handler) RegisterRoutesV1(v1 *gin.RouterGroup, auth gin.HandlerFunc, sendLimit gin.HandlerFunc) {
	v1.POST("/profiles", h.CreateProfile)

	protected := v1.Group("/")
	protected.Use(auth)
	{
		protected.GET("/profiles/me", h.Me)

		protected.GET("/sessions", h.ListSessions)
		protected.POST("/sessions", h.CreateSession)
		protected.PUT("/sessions/current", h.SelectSession)
		protected.GET("/sessions/:id", h.GetSession)
		protected.DELETE("/sessions/:id", h.DeleteSession)

		protected.POST("/messages", sendLimit, h.SendMessage)

		protected.GET("/gate", h.GateState)
		protected.POST("/gate/advance", h.AdvanceGate)
		protected.POST("/gate/cancel", h.CancelGate)

		protected.GET("/subscription", h.GetSubscription)
		protected.POST("/subscription/upgrade", h.UpgradeSubscription)
	}
}

// workspace resolves the authenticated profile's workspace
func (h *Handler) workspace(c *gin.Context) (*chat.Workspace, bool) {
	profileID := c.GetString(middleware.ProfileIDContextKey)
	if profileID == "" {
		c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
		c.Abort()
		return nil, false
	}
	return h.registry.Get(c.Request.Context(), profileID), true
}

// CreateProfile issues a new anonymous profile and its token
func (h *Handler) CreateProfile(c *gin.Context) {
	profileID := uuid.NewString()

	token, err := h.jwtService.GenerateToken(profileID)
	if err != nil {
		c.Error(errors.NewInternalServerError("TOKEN_ERROR", "Failed to issue profile token").WithDetails(err.Error()))
		return
	}

	logger.FromGin(c).Info("Profile created", "profile_id", profileID)

	c.JSON(http.StatusCreated, gin.H{
		"profileId": profileID,
		"token":     token,
	})
}

// Me returns the profile's subscription and generating flag
func (h *Handler) Me(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profileId":    ws.ProfileID(),
		"subscription": ws.Subscription(c.Request.Context()),
		"generating":   ws.IsGenerating(),
	})
}
