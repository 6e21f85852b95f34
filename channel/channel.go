// Package channel is the client side of a snake connection: it dials the
// server, encodes and decodes frames, and reconnects after the transport
// drops.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cawio/snake/protocol"
)

var (
	// ErrChannelNotOpen is returned by Send while no connection is open.
	ErrChannelNotOpen = errors.New("channel not open")
	// ErrChannelClosed is returned once Close was called.
	ErrChannelClosed = errors.New("channel closed")
	// ErrSuperseded is returned by a Connect whose dial was overtaken by a
	// later Connect.
	ErrSuperseded = errors.New("connect superseded")
)

const (
	defaultReconnectDelay = 1000 * time.Millisecond
	defaultBuffer         = 64
	writeWait             = 10 * time.Second
)

// ReconnectPolicy decides what happens after the transport closes
type ReconnectPolicy int

const (
	// AutoReconnect schedules one attempt after the reconnect delay and keeps
	// retrying while attempts fail.
	AutoReconnect ReconnectPolicy = iota
	// ConfirmReconnect reports Closed and waits for an explicit Connect.
	ConfirmReconnect
)

func (p ReconnectPolicy) String() string {
	if p == ConfirmReconnect {
		return "confirm"
	}
	return "auto"
}

// State of the channel
type State int

const (
	Idle State = iota
	Connecting
	Open
	Reconnecting // waiting for the reconnect timer
	Disconnected // closed, waiting for Connect
	Stopped      // Close was called
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Reconnecting:
		return "reconnecting"
	case Disconnected:
		return "disconnected"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// EventType names a lifecycle notification
type EventType int

const (
	Opened EventType = iota
	Closed
	Errored
)

func (t EventType) String() string {
	switch t {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	}
	return "errored"
}

// Event is a lifecycle notification. Err is set for Errored.
type Event struct {
	Type EventType
	Err  error
}

// Conn is the part of *websocket.Conn the channel uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a transport connection to address
type Dialer func(ctx context.Context, address string) (Conn, error)

// WebsocketDialer dials with gorilla's default dialer
func WebsocketDialer(ctx context.Context, address string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Option customizes a Channel
type Option func(*Channel)

func WithPolicy(p ReconnectPolicy) Option { return func(c *Channel) { c.policy = p } }

func WithReconnectDelay(d time.Duration) Option { return func(c *Channel) { c.delay = d } }

func WithClock(clock clockwork.Clock) Option { return func(c *Channel) { c.clock = clock } }

func WithDialer(d Dialer) Option { return func(c *Channel) { c.dial = d } }

// WithCodec selects the frame encoding. The server must be told the same
// codec through the enc query parameter.
func WithCodec(codec protocol.Codec) Option { return func(c *Channel) { c.codec = codec } }

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Channel) { c.log = l } }

// WithBuffer sizes the Messages and Events streams
func WithBuffer(n int) Option { return func(c *Channel) { c.buffer = n } }

// Channel wraps one transport connection at a time
type Channel struct {
	policy ReconnectPolicy
	delay  time.Duration
	clock  clockwork.Clock
	dial   Dialer
	codec  protocol.Codec
	log    *zap.SugaredLogger
	buffer int

	mu      sync.Mutex
	state   State
	address string
	conn    Conn
	gen     uint64 // bumped for every new connection; stale readers exit
	timer   clockwork.Timer
	timerID uint64 // identifies the live reconnect timer
	dialID  uint64 // identifies the newest dial; older dials give up

	msgs   chan protocol.Message
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	dropped int // malformed inbound frames
}

// New creates an idle Channel
func New(opts ...Option) *Channel {
	c := &Channel{
		policy: AutoReconnect,
		delay:  defaultReconnectDelay,
		clock:  clockwork.NewRealClock(),
		dial:   WebsocketDialer,
		codec:  protocol.JSON,
		log:    zap.NewNop().Sugar(),
		buffer: defaultBuffer,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.msgs = make(chan protocol.Message, c.buffer)
	c.events = make(chan Event, c.buffer)
	return c
}

// Messages delivers decoded inbound messages in receipt order. It is closed
// by Close.
func (c *Channel) Messages() <-chan protocol.Message { return c.msgs }

// Events delivers lifecycle notifications. It is closed by Close.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the last address passed to Connect
func (c *Channel) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Dropped returns how many inbound frames failed to decode
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Connect dials address and makes it the address for later reconnects. It
// cancels a pending reconnect and replaces an open connection.
func (c *Channel) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.stopTimerLocked()
	c.dropConnLocked()
	c.address = address
	c.state = Connecting
	c.dialID++
	id := c.dialID
	c.mu.Unlock()

	return c.attempt(ctx, address, id)
}

// attempt dials once and, on failure, applies the reconnect policy. Only the
// dial matching dialID may install its connection.
func (c *Channel) attempt(ctx context.Context, address string, id uint64) error {
	conn, err := c.dial(ctx, address)

	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrChannelClosed
	}
	if id != c.dialID {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.log.Debugw("dial superseded", "address", address)
		return ErrSuperseded
	}
	if err != nil {
		c.log.Warnw("dial failed", "address", address, "policy", c.policy, "err", err)
		c.afterDropLocked()
		c.emitLocked(Event{Type: Errored, Err: err})
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", address, err)
	}

	c.dropConnLocked()
	c.gen++
	c.conn = conn
	c.state = Open
	c.wg.Add(1)
	go c.readLoop(conn, c.gen)
	c.emitLocked(Event{Type: Opened})
	c.mu.Unlock()

	c.log.Infow("channel open", "address", address)
	return nil
}

// Send encodes m and writes it on the open connection
func (c *Channel) Send(m protocol.Message) error {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open || c.conn == nil {
		return ErrChannelNotOpen
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(frameType, frame); err != nil {
		c.emitLocked(Event{Type: Errored, Err: err})
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

// Close stops the channel for good: cancels a pending reconnect, closes the
// connection and both streams
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopped
	c.dialID++
	c.stopTimerLocked()
	c.dropConnLocked()
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	close(c.msgs)
	close(c.events)
	return nil
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	defer c.wg.Done()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.connLost(gen, err)
			return
		}
		msg, err := c.codec.Decode(frame)
		if err != nil {
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
			c.log.Warnw("dropping malformed frame", "err", err)
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

// connLost handles the end of connection gen. Readers of replaced
// connections exit quietly.
func (c *Channel) connLost(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Open {
		return
	}
	c.conn.Close()
	c.conn = nil

	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.emitLocked(Event{Type: Errored, Err: err})
	}
	c.log.Infow("channel closed", "address", c.address, "policy", c.policy, "err", err)
	c.afterDropLocked()
	c.emitLocked(Event{Type: Closed})
}

// afterDropLocked applies the reconnect policy once a connection or an
// attempt is gone
func (c *Channel) afterDropLocked() {
	if c.policy == ConfirmReconnect {
		c.state = Disconnected
		return
	}
	c.state = Reconnecting
	c.timerID++
	id := c.timerID
	c.timer = c.clock.AfterFunc(c.delay, func() { c.reconnect(id) })
}

// reconnect is the timer callback of AutoReconnect
func (c *Channel) reconnect(id uint64) {
	c.mu.Lock()
	if c.state != Reconnecting || c.timerID != id {
		// superseded by Connect or Close
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = Connecting
	address := c.address
	c.dialID++
	dialID := c.dialID
	c.mu.Unlock()

	c.log.Infow("reconnecting", "address", address)
	_ = c.attempt(context.Background(), address, dialID)
}

func (c *Channel) stopTimerLocked() {
	c.timerID++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// dropConnLocked closes the current connection without triggering the
// reconnect policy
func (c *Channel) dropConnLocked() {
	if c.conn == nil {
		return
	}
	c.gen++
	c.conn.Close()
	c.conn = nil
}

// emitLocked delivers e without blocking. Must hold mu; nothing is sent after
// Close.
func (c *Channel) emitLocked(e Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.events <- e:
	default:
		c.log.Warnw("event stream full, dropping event", "event", e.Type)
	}
}
