package hub

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings before the peer's read deadline passes.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds frames read from subscribers, which only send control frames.
	maxMessageSize = 4 * 1024

	// sendBuffer is the per-client queue; a full queue drops the client.
	sendBuffer = 64
)

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// stop is closed when readPump returns so writePump exits even when
	// the hub is gone and nobody closes send.
	stop chan struct{}
}

// Handler returns the fiber handler that upgrades and serves subscribers.
// Non-upgrade requests get 426.
func (h *Hub) Handler() fiber.Handler {
	serve := websocket.New(func(conn *websocket.Conn) {
		c := &Client{
			hub:  h,
			conn: conn,
			send: make(chan Message, sendBuffer),
			stop: make(chan struct{}),
		}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}
		c.run()
	})
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return serve(c)
	}
}

// run blocks until both pumps have exited. The connection is recycled by
// the websocket middleware as soon as the handler returns, so writePump
// must be finished with it first.
func (c *Client) run() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()

	c.readPump()
	close(c.stop)
	<-written
	c.conn.Close()
}

// readPump only detects disconnects and handles pongs; subscribers never send.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection. A failed write closes
// the connection so readPump unblocks.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.conn.Close()
				return
			}
			wsType := websocket.TextMessage
			if msg.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, msg.Data); err != nil {
				c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}

		case <-c.stop:
			return
		}
	}
}
