package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte

	hub  *Hub
	log  *slog.Logger
	Done chan struct{}
}

func NewClient(userID int64, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
		log:    hub.log.With("user_id", userID),
		Done:   make(chan struct{}),
	}
}

// Run registers the client and blocks until the connection closes.
func (c *Client) Run() {
	c.hub.Register(c)
	go c.writePump()

	if msg, err := encode(MsgReady, ReadyPayload{UserID: c.UserID}); err == nil {
		c.enqueue(msg)
	}

	c.readPump()
}

// enqueue drops the frame if the client is too slow to keep up.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		c.log.Warn("ws send buffer full, dropping frame")
		return false
	}
}

//read
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read error", "error", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		if out, err := encode(MsgError, ErrorPayload{Message: "invalid message"}); err == nil {
			c.enqueue(out)
		}
		return
	}
	switch env.Type {
	case MsgPing:
		if out, err := encode(MsgPong, nil); err == nil {
			c.enqueue(out)
		}
	default:
		if out, err := encode(MsgError, ErrorPayload{Message: "unknown message type"}); err == nil {
			c.enqueue(out)
		}
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("ws write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done:
			return
		}
	}
}
