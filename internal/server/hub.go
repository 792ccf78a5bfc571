package server

import (
	"sync"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 64
)

// Hub tracks connection limits and which client ids are connected. It is
// accessed from HTTP handlers and peer goroutines.
type Hub struct {
	mu         sync.Mutex
	ipConns    map[string]int
	totalConns int
	clients    map[sim.ClientID]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		ipConns: make(map[string]int),
		clients: make(map[sim.ClientID]bool),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Claim reserves a client id for a new connection. It fails when the id is
// already connected.
func (h *Hub) Claim(cid sim.ClientID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[cid] {
		return false
	}
	h.clients[cid] = true
	return true
}

// Release frees a claimed client id.
func (h *Hub) Release(cid sim.ClientID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, cid)
}

// ClientCount returns the number of claimed client ids.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalConns
}
