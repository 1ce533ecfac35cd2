package ws

import (
	"net/http"
	"strings"
	"time"

	"oficiogen/backend/internal/chat"
	"oficiogen/backend/pkg/errors"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewUpgrader builds an upgrader accepting the given origins. "*" allows any.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
	}
}

// Handler upgrades authenticated requests and attaches them to the hub. The
// profile's workspace stays resident while the connection is open.
func Handler(hub *Hub, registry *chat.Registry, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		profileID := c.GetString(middleware.ProfileIDContextKey)
		if profileID == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.FromGin(c).Warn("Websocket upgrade failed", "error", err.Error())
			return
		}

		client := &Client{
			ID:        uuid.NewString(),
			ProfileID: profileID,
			Conn:      conn,
			Send:      make(chan []byte, 64),
			Hub:       hub,
			Registry:  registry,
			Release:   registry.Hold(profileID),
		}

		if !hub.Register(client) {
			client.Release()
			conn.Close()
			return
		}
		client.sendState()

		go client.WritePump()
		go client.ReadPump()
	}
}
