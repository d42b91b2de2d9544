package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"newsroom/internal/constants"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateConnected ClientState = iota
	ClientStateClosing
	ClientStateClosed
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	// The channel is server -> client only; inbound frames are discarded.
	maxMessageSize = 512
)

// Client is one session-channel connection of an authenticated user.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *WSMessage
	sendCloseOnce sync.Once
	connCloseOnce sync.Once
	state         atomic.Int32

	userID    string
	role      string
	sessionID string
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, role string) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *WSMessage, constants.WSClientSendBufferSize),
		userID:    userID,
		role:      role,
		sessionID: uuid.NewString(),
	}
	c.state.Store(int32(ClientStateConnected))
	return c
}

// Start queues HELLO, registers with the hub and runs the pumps. The hub
// queues READY on successful registration, so a revocation issued after the
// peer sees READY is always delivered. Reports whether registration succeeded.
func (c *Client) Start() bool {
	c.send <- &WSMessage{Op: OpHello, Data: HelloPayload{HeartbeatIntervalMs: pingPeriod.Milliseconds()}}

	registered := c.hub.Register(c)
	go c.WritePump()
	if !registered {
		c.CloseSend()
		return false
	}
	go c.ReadPump()
	return true
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.connCloseOnce.Do(func() { c.conn.Close() })
	c.transitionTo(ClientStateClosed)
}

// CloseSend closes the outbound queue. WritePump flushes what is queued and
// then sends a close frame. Only the hub goroutine calls it after Register.
func (c *Client) CloseSend() {
	c.sendCloseOnce.Do(func() { close(c.send) })
}

func (c *Client) IsClosed() bool {
	return ClientState(c.state.Load()) == ClientStateClosed
}

func (c *Client) transitionTo(next ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if current >= next {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(next)) {
			return true
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "component", "ws", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if c.IsClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Debug("websocket write error", "component", "ws", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
