package api

import (
	"net/http"

	"oficiogen/backend/pkg/errors"
	"oficiogen/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage arms the ad gate with the message content
func (h *Handler) SendMessage(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	state, err := ws.Send(c.Request.Context(), req.Content)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusAccepted, state)
}

// GateState returns the current gate snapshot
func (h *Handler) GateState(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ws.GateState())
}

// AdvanceGate moves to the next ad step or, on the last one, runs the generation
func (h *Handler) AdvanceGate(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	result, err := ws.Advance(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}

	if result.Turn != nil {
		logger.FromGin(c).Info("Generation turn completed",
			"session_id", result.Turn.Session.ID,
			"outcome", result.Turn.Outcome,
		)
	}

	c.JSON(http.StatusOK, result)
}

// CancelGate closes the gate and drops the pending message
func (h *Handler) CancelGate(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ws.CancelGate(c.Request.Context()))
}
