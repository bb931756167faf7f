package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
)

const (
	sendBuffer     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	disconnectWait = 5 * time.Second

	defaultMaxMessageSize = 64 * 1024
)

// EventHandler receives the inbound traffic of a client.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, event string, data json.RawMessage)
	// HandlePong is called every time the client answers a ping.
	HandlePong(ctx context.Context, c *Client)
	// HandleDisconnect is called once, after the read loop ends.
	HandleDisconnect(ctx context.Context, c *Client)
}

// Frame is the JSON envelope of every inbound and outbound message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one authenticated WebSocket connection.
type Client struct {
	id      string
	userID  string
	role    string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	handler EventHandler
	closed  bool

	maxMessageSize int64
	log            zerolog.Logger
}

// NewClient wraps an upgraded connection for the given user. It is not
// active until passed to Hub.Register.
func NewClient(conn *websocket.Conn, hub *Hub, handler EventHandler, userID, role string, maxMessageSize int64) *Client {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		id:             id,
		userID:         userID,
		role:           role,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		handler:        handler,
		maxMessageSize: maxMessageSize,
		log:            hub.log.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }
func (c *Client) Role() string   { return c.role }

// Emit queues an event for this client only.
func (c *Client) Emit(ctx context.Context, name string, data any) {
	if err := c.hub.SendToConn(ctx, c.id, domain.Event{Name: name, Data: data}); err != nil {
		c.log.Debug().Err(err).Str("event", name).Msg("emit failed")
	}
}

func (c *Client) setupReadConnection(ctx context.Context) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("error setting read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Debug().Err(err).Msg("error setting read deadline in pong handler")
		}
		c.handler.HandlePong(ctx, c)
		return nil
	})
}

// handleReadError logs the read error at a level matching how expected it
// was. The read loop always stops afterwards.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("max_bytes", c.maxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
		c.handler.HandleDisconnect(dctx, c)
		cancel()

		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection(ctx)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.Emit(ctx, domain.EventError, domain.ErrorPayload{Message: "invalid frame"})
			continue
		}
		c.handler.HandleEvent(ctx, c, frame.Event, frame.Data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error closing connection in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("error writing message")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// unregisterClient hands the client back to Run, or removes it directly
// once the hub has stopped.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.remove(c, false)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
