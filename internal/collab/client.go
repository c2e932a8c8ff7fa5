package collab

import (
	"encoding/json"
	"time"

	"csvlens-be/internal/pkg/auth"
	"csvlens-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Voice comments carry base64 audio blobs, so the read limit is far
	// larger than a typical cursor/edit frame.
	maxMessageSize = 1 << 20
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	send   chan []byte
	logger logger.ILogger
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (c *Client) ID() string {
	return c.id
}

// Emit implements Conn. Frames are dropped (with a warning) rather than
// blocking the hub loop when the client cannot keep up.
func (c *Client) Emit(event string, payload interface{}) {
	data, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("CollabClient", "Failed to marshal outbound frame", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("CollabClient", "Send buffer full, dropping frame", map[string]interface{}{
			"conn_id": c.id,
			"event":   event,
		})
	}
}

// readPump pumps inbound frames from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("CollabClient", "Unexpected close", map[string]interface{}{
					"conn_id": c.id,
					"error":   err.Error(),
				})
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.Emit(EventError, ErrorPayload{Code: CodeBadPayload, Message: "malformed frame"})
			continue
		}
		c.hub.Dispatch(c, env)
	}
}

// writePump pumps outbound frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeClient attaches an upgraded websocket connection to the hub and runs
// its pumps. Blocks until the connection closes.
func ServeClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, authenticated bool, log logger.ILogger) {
	client := &Client{
		hub:    hub,
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan []byte, 256),
		logger: log,
	}
	hub.Register(client, identity, authenticated)

	go client.writePump()
	client.readPump()
}
