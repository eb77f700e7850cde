package hub

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Client is one websocket connection. Send is written only by the hub's
// Run goroutine and closed when the client is unregistered.
type Client struct {
	ID     string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	config config.WebSocketConfig
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, size),
		config: cfg,
	}
}

// ReadPump hands every text frame to handler until the connection fails.
// Any frame or pong extends the read deadline. onClose runs before the
// client is unregistered from the hub.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	l := log.L().With().Str(log.FieldConnectionID, c.ID).Logger()
	defer func() {
		if onClose != nil {
			onClose(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	extend := func() {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	}

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	extend()
	c.Conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		kind, message, err := c.Conn.ReadMessage()
		switch {
		case errors.Is(err, websocket.ErrReadLimit):
			l.Warn().Int64("limit", c.config.MaxMessageSize).Msg("frame exceeds read limit, closing")
			return
		case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure):
			l.Warn().Err(err).Msg("websocket read error")
			return
		case err != nil:
			return
		}

		extend()
		if kind != websocket.TextMessage {
			l.Debug().Int("frame_type", kind).Msg("ignoring non-text frame")
			continue
		}
		handler(c, message)
	}
}

// WritePump writes queued messages, one frame each, and pings the peer.
// A closed Send channel ends the connection with a going-away close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever queued up meanwhile under the same deadline.
			for n := len(c.Send); n > 0; n-- {
				message, ok = <-c.Send
				if !ok {
					c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
