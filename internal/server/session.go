package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/cawio/snake/internal/game"
)

// Session is the one game room served by this process
type Session struct {
	ID      string
	Started time.Time
	Game    *game.Game
}

// NewSession wraps g. A blank id gets a fresh UUID.
func NewSession(id string, g *game.Game) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id, Started: time.Now(), Game: g}
}

// Info summarizes the session for /metrics and /healthz
func (s *Session) Info() map[string]any {
	return map[string]any{
		"id":         s.ID,
		"uptime_sec": int64(time.Since(s.Started).Seconds()),
		"players":    s.Game.PlayerCount(),
		"alive":      s.Game.AliveCount(),
	}
}
