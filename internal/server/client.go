package server

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cawio/snake/internal/game"
	"github.com/cawio/snake/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a WebSocket connection owned by one player id
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	remoteAddr string
	codec      protocol.Codec
	msgCount   int
	msgResetAt time.Time

	// guarded by the Dispatcher mutex
	closed bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, id, remoteAddr string, codec protocol.Codec) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         id,
		remoteAddr: remoteAddr,
		codec:      codec,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugw("ws read error", "id", c.id, "err", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > c.hub.limits.MessagesPerSecond {
			c.hub.dispatch.metrics.incRateLimited()
			c.hub.log.Warnw("rate limit exceeded, disconnecting", "id", c.id, "ip", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(frameType, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one frame and turns it into a game intent. A frame
// that does not decode is counted and dropped; the connection stays open.
func (c *Client) handleMessage(raw []byte) {
	msg, err := c.codec.Decode(raw)
	if err != nil {
		c.hub.dispatch.metrics.incMalformed()
		c.hub.log.Debugw("dropping malformed frame", "id", c.id, "err", err)
		return
	}

	switch msg.Type {
	case protocol.MsgJoin:
		data := msg.Data.(protocol.JoinData)
		if err := c.hub.game.ApplyJoin(c.id, data.Username); err != nil {
			c.hub.dispatch.SendTo(c, protocol.Error(errorCode(err), err.Error()))
		}
	case protocol.MsgMove:
		data := msg.Data.(protocol.MoveData)
		c.hub.game.ApplyMove(c.id, data.Direction)
	case protocol.MsgLeave:
		c.hub.game.ApplyLeave(c.id)
	default:
		// server-to-client types are not intents
		c.hub.log.Debugw("ignoring message", "id", c.id, "type", msg.Type)
	}
}

// errorCode maps a join error to its wire code
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrEmptyUsername):
		return protocol.CodeEmptyUsername
	case errors.Is(err, game.ErrUsernameTaken):
		return protocol.CodeUsernameTaken
	case errors.Is(err, game.ErrAlreadyJoined):
		return protocol.CodeAlreadyJoined
	case errors.Is(err, game.ErrBoardFull):
		return protocol.CodeBoardFull
	}
	return protocol.CodeInternal
}
