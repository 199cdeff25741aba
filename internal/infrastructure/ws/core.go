package ws

import (
	"context"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
)

// Core is the signaling hub. Client traffic goes through the Run loop; server
// side sends go straight to the channel manager.
type Core struct {
	channels   *ChannelManager
	register   chan *Client
	unregister chan *Client
	broadcast  chan *WSMessage
	done       chan struct{}
	limiter    ratelimiter.Limiter
	metrics    *metrics.Metrics
	logger     logging.Logger
}

var _ domain.Signaler = (*Core)(nil)

func NewCore(limiter ratelimiter.Limiter, m *metrics.Metrics, logger logging.Logger) *Core {
	return &Core{
		channels:   NewChannelManager(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *WSMessage, 256),
		done:       make(chan struct{}),
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

// Run serves register, unregister and relay traffic until ctx is cancelled.
// Once it returns, every remaining connection is closed and later client
// traffic is handled inline.
func (c *Core) Run(ctx context.Context) {
	defer c.shutdown()

	for {
		select {
		case cl := <-c.register:
			c.channels.AddClient(cl)
			c.metrics.SignalConnected()

		case cl := <-c.unregister:
			if c.channels.RemoveClient(cl) {
				c.metrics.SignalDisconnected()
			}

		case msg := <-c.broadcast:
			if _, err := c.channels.Broadcast(msg); err != nil {
				c.logf("broadcast on %s: %v", msg.Channel, err)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Core) shutdown() {
	close(c.done)
	n := c.channels.CloseAll()
	for i := 0; i < n; i++ {
		c.metrics.SignalDisconnected()
	}
	if n > 0 {
		c.logger.Info(logging.Signaling, logging.EndCircle, "Signaling hub stopped", map[logging.ExtraKey]any{
			logging.Count: n,
		})
	}
}

// Register hands cl to the hub. It reports false once the hub has stopped.
func (c *Core) Register(cl *Client) bool {
	select {
	case c.register <- cl:
		return true
	case <-c.done:
		return false
	}
}

func (c *Core) unregisterClient(cl *Client) {
	select {
	case c.unregister <- cl:
	case <-c.done:
		c.channels.RemoveClient(cl)
	}
}

func (c *Core) relay(msg *WSMessage) {
	select {
	case c.broadcast <- msg:
	case <-c.done:
	}
}

// Publish sends env to every connection on channelName.
func (c *Core) Publish(channelName string, env domain.Envelope) {
	if _, err := c.channels.Broadcast(fromEnvelope(channelName, env)); err != nil && err != ErrChannelNotFound {
		c.logf("broadcast on %s: %v", channelName, err)
	}
}

// Direct sends env only to userID's connections on channelName.
func (c *Core) Direct(channelName, userID string, env domain.Envelope) bool {
	return c.channels.SendToUser(userID, fromEnvelope(channelName, env))
}

// Disconnect drops userID's connections from channelName.
func (c *Core) Disconnect(channelName, userID string) {
	n := c.channels.RemoveUser(channelName, userID)
	for i := 0; i < n; i++ {
		c.metrics.SignalDisconnected()
	}
	if n > 0 {
		c.logger.Info(logging.Signaling, logging.LeaveCircle, "User disconnected from channel", map[logging.ExtraKey]any{
			logging.ChannelName: channelName,
			logging.UserID:      userID,
			logging.Count:       n,
		})
	}
}

// Close disconnects everyone on channelName.
func (c *Core) Close(channelName string) {
	if n := c.channels.CloseChannel(channelName); n > 0 {
		for i := 0; i < n; i++ {
			c.metrics.SignalDisconnected()
		}
		c.logger.Info(logging.Signaling, logging.EndCircle, "Channel closed", map[logging.ExtraKey]any{
			logging.ChannelName: channelName,
			logging.Count:       n,
		})
	}
}

func (c *Core) ClientCount(channelName string) int {
	return c.channels.ClientCount(channelName)
}

func (c *Core) allowRelay(cl *Client) bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow("ws:" + cl.UserID)
}

func (c *Core) logf(template string, args ...any) {
	c.logger.Warnf(template, args...)
}
