package ws

import (
	"errors"
	"sync"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
)

// Channel groups the live connections of one circle.
type Channel struct {
	Name    string
	Clients map[string]*Client // client ID -> Client
}

// ChannelManager tracks every open channel. Sends never block.
type ChannelManager struct {
	channels map[string]*Channel // channelName -> Channel
	mu       sync.RWMutex
}

func NewChannelManager() *ChannelManager {
	return &ChannelManager{
		channels: make(map[string]*Channel),
	}
}

func (cm *ChannelManager) AddClient(cl *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ch, ok := cm.channels[cl.ChannelName]
	if !ok {
		ch = &Channel{
			Name:    cl.ChannelName,
			Clients: make(map[string]*Client),
		}
		cm.channels[cl.ChannelName] = ch
	}

	ch.Clients[cl.ID] = cl
}

// RemoveClient reports whether cl was still registered.
func (cm *ChannelManager) RemoveClient(cl *Client) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ch, ok := cm.channels[cl.ChannelName]
	if !ok {
		return false
	}
	if _, ok := ch.Clients[cl.ID]; !ok {
		return false
	}

	delete(ch.Clients, cl.ID)
	cl.close()
	if len(ch.Clients) == 0 {
		delete(cm.channels, cl.ChannelName)
	}
	return true
}

// CloseChannel disconnects every client of channelName and returns how many there were.
func (cm *ChannelManager) CloseChannel(channelName string) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ch, ok := cm.channels[channelName]
	if !ok {
		return 0
	}
	for _, cl := range ch.Clients {
		cl.close()
	}
	delete(cm.channels, channelName)
	return len(ch.Clients)
}

// CloseAll disconnects every client of every channel.
func (cm *ChannelManager) CloseAll() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	n := 0
	for name, ch := range cm.channels {
		for _, cl := range ch.Clients {
			cl.close()
			n++
		}
		delete(cm.channels, name)
	}
	return n
}

// RemoveUser disconnects every client userID holds on channelName and returns how many there were.
func (cm *ChannelManager) RemoveUser(channelName, userID string) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ch, ok := cm.channels[channelName]
	if !ok {
		return 0
	}

	removed := 0
	for id, cl := range ch.Clients {
		if cl.UserID != userID {
			continue
		}
		delete(ch.Clients, id)
		cl.close()
		removed++
	}
	if len(ch.Clients) == 0 {
		delete(cm.channels, channelName)
	}
	return removed
}

// Broadcast returns the number of clients that accepted msg.
func (cm *ChannelManager) Broadcast(msg *WSMessage) (int, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ch, ok := cm.channels[msg.Channel]
	if !ok {
		return 0, ErrChannelNotFound
	}

	sent := 0
	for _, cl := range ch.Clients {
		if cl.send(msg) {
			sent++
		}
	}
	return sent, nil
}

// SendToUser delivers msg to every connection userID holds on msg.Channel.
func (cm *ChannelManager) SendToUser(userID string, msg *WSMessage) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ch, ok := cm.channels[msg.Channel]
	if !ok {
		return false
	}

	delivered := false
	for _, cl := range ch.Clients {
		if cl.UserID == userID && cl.send(msg) {
			delivered = true
		}
	}
	return delivered
}

func (cm *ChannelManager) ClientCount(channelName string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if ch, ok := cm.channels[channelName]; ok {
		return len(ch.Clients)
	}
	return 0
}
