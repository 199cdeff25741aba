package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/haven/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Client is one websocket connection of a participant. A user may hold several.
type Client struct {
	conn        *connWrapper
	Message     chan *WSMessage
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	ChannelName string `json:"channelName"`

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, userID, channelName string) *Client {
	return &Client{
		conn:        newConnWrapper(conn),
		Message:     make(chan *WSMessage, 64), // buffered to avoid dead-locks on slow clients
		ID:          uuid.NewString(),
		UserID:      userID,
		ChannelName: channelName,
	}
}

// ReadMessage relays client envelopes to the rest of the channel until the connection drops.
func (c *Client) ReadMessage(core *Core) {
	defer func() {
		core.unregisterClient(c)
		_ = c.conn.Close()
	}()

	ws := c.conn.conn
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				core.logf("ws read error (client %s): %v", c.ID, err)
			}
			return
		}

		if c.isClosed() {
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			c.send(NewError(c.ChannelName, BadEnvelope, "Messages must be JSON objects with a type"))
			continue
		}
		if !core.allowRelay(c) {
			c.send(NewError(c.ChannelName, RateLimited, "Too many messages"))
			continue
		}

		// The sender can not be spoofed.
		env.From = c.UserID
		core.relay(fromEnvelope(c.ChannelName, env))
	}
}

// WriteMessage drains the outbound queue and keeps the connection alive with pings.
func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Message:
			if !ok {
				_ = c.conn.WriteClose(websocket.CloseNormalClosure, "channel closed")
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WritePing(); err != nil {
				return
			}
		}
	}
}

// send queues msg without blocking. Slow or closed clients drop it.
func (c *Client) send(msg *WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Message <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Message)
	}
}
