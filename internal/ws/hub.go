package ws

import (
	"context"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans out feed events to the subscribers of each tenant.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
}

// message couples payload with tenant key.
type message struct {
	tenant  string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	tenant string
	client Subscriber
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
	}
}

// Run delivers messages until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for tenant, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
				delete(h.clients, tenant)
			}
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[sub.tenant]; !ok {
				h.clients[sub.tenant] = make(map[Subscriber]struct{})
			}
			h.clients[sub.tenant][sub.client] = struct{}{}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.remove(sub.tenant, sub.client)
		case msg := <-h.broadcast:
			h.mu.RLock()
			var failed []Subscriber
			for c := range h.clients[msg.tenant] {
				if err := c.Send(msg.payload); err != nil {
					failed = append(failed, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range failed {
				c.Close()
				h.remove(msg.tenant, c)
			}
		}
	}
}

func (h *Hub) remove(tenant string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[tenant]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, tenant)
		}
	}
}

// Register adds a client to a tenant feed.
func (h *Hub) Register(tenant string, client Subscriber) {
	select {
	case h.register <- subscription{tenant: tenant, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(tenant string, client Subscriber) {
	select {
	case h.unreg <- subscription{tenant: tenant, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of tenant. It reports false when
// the hub is saturated or stopped and the payload was dropped.
func (h *Hub) Broadcast(tenant string, payload []byte) bool {
	select {
	case h.broadcast <- message{tenant: tenant, payload: payload}:
		return true
	default:
		return false
	}
}

// Subscribers returns the number of clients on a tenant feed.
func (h *Hub) Subscribers(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenant])
}
