package realtime

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains group -> set of connections and fans out frames locally.
// It subscribes to the Bus for each group while the group has members, so
// frames published anywhere (this process or another instance) reach the
// local connections exactly once.
type Hub struct {
	// group name -> map[clientID]*Client
	groups map[string]map[string]*Client
	subs   map[string]func() // cancel Bus subscription per group
	mu     sync.RWMutex
	logger *zap.Logger
	bus    Bus
}

// NewHub creates a connection hub wired to bus.
func NewHub(logger *zap.Logger, bus Bus) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		groups: make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		logger: logger,
		bus:    bus,
	}
}

// Join registers a client under its group. The first member of a group
// starts the Bus subscription for it.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	if h.groups[c.Group] == nil {
		h.groups[c.Group] = make(map[string]*Client)
		if h.bus != nil {
			group := c.Group
			cancel, err := h.bus.Subscribe(group, func(frame []byte) {
				h.Broadcast(group, frame)
			})
			if err != nil {
				h.logger.Warn("bus subscribe failed", zap.String("group", group), zap.Error(err))
			} else {
				h.subs[group] = cancel
			}
		}
	}
	h.groups[c.Group][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined group",
		zap.String("client_id", c.ID), zap.String("group", c.Group))
}

// Leave deregisters a client from its group; the last member leaving
// cancels the Bus subscription. Leaving twice, or leaving without having
// joined, is a no-op.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if m, ok := h.groups[c.Group]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(h.groups, c.Group)
				if cancel, ok := h.subs[c.Group]; ok {
					cancel()
					delete(h.subs, c.Group)
				}
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left group",
		zap.String("client_id", c.ID), zap.String("group", c.Group))
}

// Broadcast sends a frame to every local client in a group. A client whose
// send buffer is full misses the frame; delivery is best-effort.
func (h *Hub) Broadcast(group string, frame []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- frame:
		default:
			// buffer full, skip
		}
	}
}

// GroupSize returns the number of connected clients in a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
