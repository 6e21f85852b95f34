package game

import "github.com/cawio/snake/protocol"

// Player is one participant of the session together with its snake
type Player struct {
	ID       string
	Username string
	State    protocol.PlayerState
	Snake    []protocol.Cell // head first
	Heading  protocol.Direction
	Pending  protocol.Direction // "" when no move is queued for the next tick
	Score    int

	joinSeq uint64 // join order, used to keep snapshots stable
}

// NewPlayer creates an ALIVE player with a single-cell snake at head
func NewPlayer(id, username string, head protocol.Cell, heading protocol.Direction) *Player {
	return &Player{
		ID:       id,
		Username: username,
		State:    protocol.Alive,
		Snake:    []protocol.Cell{head},
		Heading:  heading,
	}
}

// Alive reports whether the player still takes part in the simulation
func (p *Player) Alive() bool {
	return p.State == protocol.Alive
}

// Head returns the first cell of the snake
func (p *Player) Head() protocol.Cell {
	return p.Snake[0]
}

// Tail returns the last cell of the snake
func (p *Player) Tail() protocol.Cell {
	return p.Snake[len(p.Snake)-1]
}

// Steer queues d for the next tick. Invalid directions and the exact reverse
// of the current heading are ignored; the last accepted direction wins.
func (p *Player) Steer(d protocol.Direction) bool {
	if !d.Valid() || d == p.Heading.Opposite() {
		return false
	}
	p.Pending = d
	return true
}

// nextHeading consumes the pending direction
func (p *Player) nextHeading() protocol.Direction {
	if p.Pending != "" {
		p.Heading = p.Pending
		p.Pending = ""
	}
	return p.Heading
}

// Advance moves the snake so head becomes its first cell. When growing the
// tail is kept.
func (p *Player) Advance(head protocol.Cell, grow bool) {
	if grow {
		p.Snake = append(p.Snake, protocol.Cell{})
	}
	copy(p.Snake[1:], p.Snake[:len(p.Snake)-1])
	p.Snake[0] = head
}

// Kill marks the player DEAD. Dead players keep their last snake.
func (p *Player) Kill() {
	p.State = protocol.Dead
	p.Pending = ""
}

// ToData converts to protocol state
func (p *Player) ToData() protocol.PlayerData {
	snake := make([]protocol.Cell, len(p.Snake))
	copy(snake, p.Snake)
	return protocol.PlayerData{
		ID:       p.ID,
		Username: p.Username,
		State:    p.State,
		Snake:    snake,
		Score:    p.Score,
	}
}
