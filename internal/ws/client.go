package ws

import (
	"context"
	"encoding/json"
	"time"

	"oficiogen/backend/internal/chat"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection of a profile. The workspace is looked
// up on every request, never cached, so an evicted one is reloaded.
type Client struct {
	ID        string
	ProfileID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	Registry  *chat.Registry
	// Release drops the registry hold taken for this connection
	Release func()
}

// ReadPump handles inbound control messages until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
		if c.Release != nil {
			c.Release()
		}
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("Websocket read error", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendMessage("error", map[string]string{"message": "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			c.sendMessage("pong", nil)
		case "state":
			c.sendState()
		default:
			c.sendMessage("error", map[string]string{"message": "unknown message type: " + msg.Type})
		}
	}
}

// WritePump writes queued messages and keeps the connection alive
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendState() {
	ws := c.Registry.Get(context.Background(), c.ProfileID)
	c.sendMessage("state", map[string]interface{}{
		"profileId":  c.ProfileID,
		"gate":       ws.GateState(),
		"generating": ws.IsGenerating(),
	})
}

// sendMessage queues a direct reply. It gives up instead of blocking when the
// buffer is full or the hub already closed the channel.
func (c *Client) sendMessage(messageType string, content interface{}) {
	payload, err := json.Marshal(Message{Type: messageType, Content: content})
	if err != nil {
		return
	}

	defer func() { _ = recover() }()
	select {
	case c.Send <- payload:
	default:
	}
}
