package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cawio/snake/protocol"
)

// Dispatcher fans snapshots out to every open connection. Enqueueing never
// blocks: a client whose send buffer is full misses that frame only.
type Dispatcher struct {
	mu      sync.Mutex
	clients map[*Client]bool
	last    protocol.StateUpdateData
	primed  bool

	log     *zap.SugaredLogger
	metrics Metrics
}

// NewDispatcher creates an empty Dispatcher
func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

// Publish sends s to every registered connection. The frame is encoded once
// per codec in use.
func (d *Dispatcher) Publish(s protocol.StateUpdateData) {
	msg := protocol.StateUpdate(s)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = s
	d.primed = true

	frames := make(map[protocol.Codec][]byte, 2)
	for c := range d.clients {
		frame, ok := frames[c.codec]
		if !ok {
			var err error
			frame, err = c.codec.Encode(msg)
			if err != nil {
				d.log.Errorw("encode snapshot", "codec", c.codec.Name(), "err", err)
				continue
			}
			frames[c.codec] = frame
		}
		d.enqueueLocked(c, frame)
	}
}

// SendTo delivers msg to one connection only
func (d *Dispatcher) SendTo(c *Client, msg protocol.Message) {
	frame, err := c.codec.Encode(msg)
	if err != nil {
		d.log.Errorw("encode message", "type", msg.Type, "client", c.id, "err", err)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqueueLocked(c, frame)
}

func (d *Dispatcher) enqueueLocked(c *Client, frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
		d.metrics.incFramesSent()
	default:
		d.metrics.incFramesDropped()
		d.log.Debugw("client too slow, dropping frame", "client", c.id, "ip", c.remoteAddr)
	}
}

// add registers c and hands it the latest snapshot straight away
func (d *Dispatcher) add(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c] = true
	if !d.primed {
		return
	}
	frame, err := c.codec.Encode(protocol.StateUpdate(d.last))
	if err != nil {
		d.log.Errorw("encode snapshot", "codec", c.codec.Name(), "err", err)
		return
	}
	d.enqueueLocked(c, frame)
}

// remove unregisters c and closes its send channel. Safe to call twice.
func (d *Dispatcher) remove(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, c)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Len returns the number of registered connections
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// Metrics exposes the transport counters
func (d *Dispatcher) Metrics() *Metrics {
	return &d.metrics
}
