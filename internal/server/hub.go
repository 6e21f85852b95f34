package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cawio/snake/internal/game"
)

// Limits bound what a single process accepts
type Limits struct {
	MaxConnsPerIP     int
	MaxTotalConns     int
	MessagesPerSecond int
}

// DefaultLimits mirrors the config defaults
func DefaultLimits() Limits {
	return Limits{MaxConnsPerIP: 8, MaxTotalConns: 256, MessagesPerSecond: 50}
}

// Hub tracks connections, maps player ids to their current connection and
// turns connection churn into game intents
type Hub struct {
	game       *game.Game
	dispatch   *Dispatcher
	limits     Limits
	log        *zap.SugaredLogger
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// owned by Run
	byID map[string]*Client

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub. g must publish to d; the current snapshot is
// published once so the first connections have something to receive.
func NewHub(g *game.Game, d *Dispatcher, limits Limits, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d.Publish(g.Snapshot())
	return &Hub{
		game:       g,
		dispatch:   d,
		limits:     limits,
		log:        log,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		byID:       make(map[string]*Client),
		ipConns:    make(map[string]int),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.limits.MaxTotalConns {
		return false
	}
	if h.ipConns[ip] >= h.limits.MaxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
	h.dispatch.metrics.incConnections()
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
	h.dispatch.metrics.decConnections()
}

// Run processes register/unregister events until ctx is cancelled, then
// closes every remaining connection
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			if old, ok := h.byID[c.id]; ok {
				// Same id connected again: the newer connection takes over
				// the player, the old one is closed without a leave.
				h.log.Infow("connection superseded", "id", c.id, "old_ip", old.remoteAddr, "ip", c.remoteAddr)
				h.dispatch.metrics.incSuperseded()
				h.dispatch.remove(old)
			}
			h.byID[c.id] = c
			h.dispatch.add(c)
			h.log.Debugw("client registered", "id", c.id, "ip", c.remoteAddr, "codec", c.codec.Name())

		case c := <-h.unregister:
			h.dispatch.remove(c)
			if h.byID[c.id] != c {
				continue
			}
			delete(h.byID, c.id)
			h.game.ApplyDisconnect(c.id)
			h.log.Debugw("client unregistered", "id", c.id, "ip", c.remoteAddr)

		case <-ctx.Done():
			for id, c := range h.byID {
				h.dispatch.remove(c)
				delete(h.byID, id)
			}
			return
		}
	}
}

// Register hands c to the Run loop. It reports false once the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister hands c back to the Run loop
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.dispatch.remove(c)
	}
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
