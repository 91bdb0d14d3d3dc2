package ws

import (
	"context"
	"log/slog"
	"sync"

	"voltfarm/internal/logger"
	"voltfarm/internal/service"
)

// Hub tracks open connections per user and pushes notifications to them.
// A user may have several tabs open; every connection gets the frame.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     logger.With("component", "ws_hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.UserID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

// Online reports how many connections userID has.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify sends n to every connection of userID. Offline users are skipped.
func (h *Hub) Notify(_ context.Context, userID int64, n service.Notification) error {
	msg, err := encode(MsgNotification, n)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		c.enqueue(msg)
	}
	return nil
}

// CloseAll closes every connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		_ = c.Conn.Close()
	}
}

var _ service.Notifier = (*Hub)(nil)
