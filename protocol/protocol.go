// Package protocol defines the wire vocabulary shared by the snake server and
// its clients, and the codecs that carry it.
package protocol

// MessageType names the kind of payload carried in a Message.
type MessageType string

// Client -> Server message types
const (
	MsgJoin  MessageType = "join"
	MsgLeave MessageType = "leave"
	MsgMove  MessageType = "move"
)

// Server -> Client message types
const (
	MsgStateUpdate MessageType = "state-update"
	MsgError       MessageType = "error" // sent only to the originating connection
)

// Known reports whether t is part of the vocabulary.
func (t MessageType) Known() bool {
	switch t {
	case MsgJoin, MsgLeave, MsgMove, MsgStateUpdate, MsgError:
		return true
	}
	return false
}

// Message is one frame on the wire. Data holds JoinData, MoveData,
// StateUpdateData or ErrorData by value, and nil for leave.
type Message struct {
	Type MessageType
	Data any
}

// Cell is a grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the cell one step away in direction d.
func (c Cell) Add(d Direction) Cell {
	dx, dy := d.Delta()
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// In reports whether c lies on a size x size grid.
func (c Cell) In(size int) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < size && c.Y < size
}

// Direction is a heading on the grid.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Opposite returns the reverse heading, or "" for an invalid direction.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return ""
}

// Delta returns the cell offset of one step. Y grows downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// PlayerState is the liveness of a player as sent in snapshots.
type PlayerState int

const (
	Alive PlayerState = 0
	Dead  PlayerState = 1
)

func (s PlayerState) String() string {
	if s == Dead {
		return "dead"
	}
	return "alive"
}

// JoinData is sent when a client wants a snake in the session
type JoinData struct {
	Username string `json:"username"`
}

// MoveData carries a steering intent
type MoveData struct {
	Direction Direction `json:"direction"`
}

// PlayerData is one player inside a snapshot
type PlayerData struct {
	ID       string      `json:"id"`
	Username string      `json:"username,omitempty"`
	State    PlayerState `json:"state"`
	Snake    []Cell      `json:"snake"`
	Score    int         `json:"score"`
}

// StateUpdateData is a complete snapshot of the session
type StateUpdateData struct {
	Players []PlayerData `json:"players"`
	Food    Cell         `json:"food"`
}

// Error codes carried in ErrorData.Code
const (
	CodeEmptyUsername = "empty-username"
	CodeUsernameTaken = "username-taken"
	CodeAlreadyJoined = "already-joined"
	CodeBoardFull     = "board-full"
	CodeInternal      = "internal"
)

// ErrorData reports a rejected intent back to its sender
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Join builds a join message.
func Join(username string) Message {
	return Message{Type: MsgJoin, Data: JoinData{Username: username}}
}

// Leave builds a leave message.
func Leave() Message {
	return Message{Type: MsgLeave}
}

// Move builds a move message.
func Move(d Direction) Message {
	return Message{Type: MsgMove, Data: MoveData{Direction: d}}
}

// StateUpdate builds a state-update message.
func StateUpdate(s StateUpdateData) Message {
	return Message{Type: MsgStateUpdate, Data: s}
}

// Error builds an error message.
func Error(code, msg string) Message {
	return Message{Type: MsgError, Data: ErrorData{Code: code, Message: msg}}
}
