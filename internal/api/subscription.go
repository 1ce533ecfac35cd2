package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSubscription returns the usage record, applying the weekly reset
func (h *Handler) GetSubscription(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ws.Subscription(c.Request.Context()))
}

// UpgradeSubscription switches the profile to the pro plan
func (h *Handler) UpgradeSubscription(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	sub := ws.UpgradeToPro(c.Request.Context())
	h.logger.Info("Subscription upgraded", "profile_id", ws.ProfileID())
	c.JSON(http.StatusOK, sub)
}
