package api

import (
	"net/http"

	"oficiogen/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

type selectSessionRequest struct {
	ID string `json:"id" binding:"required"`
}

// ListSessions returns every session, newest first, and the current id
func (h *Handler) ListSessions(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	sessions, currentID := ws.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions":         sessions,
		"currentSessionId": currentID,
	})
}

// CreateSession starts a new session and makes it current
func (h *Handler) CreateSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusCreated, ws.CreateSession(c.Request.Context()))
}

// GetSession returns one session
func (h *Handler) GetSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	sess, err := ws.GetSession(c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

// SelectSession switches the current session
func (h *Handler) SelectSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	var req selectSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	sess, err := ws.SelectSession(req.ID)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

// DeleteSession removes a session and returns the resulting collection
func (h *Handler) DeleteSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	if err := ws.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		abortWith(c, err)
		return
	}

	sessions, currentID := ws.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions":         sessions,
		"currentSessionId": currentID,
	})
}
