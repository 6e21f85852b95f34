// Package game owns the authoritative snake session: players, snakes, food
// and the tick that advances them.
package game

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cawio/snake/internal/analytics"
	"github.com/cawio/snake/protocol"
)

// Join errors. They are reported to the joining client only.
var (
	ErrEmptyUsername = errors.New("username must not be empty")
	ErrUsernameTaken = errors.New("username already taken")
	ErrAlreadyJoined = errors.New("player already joined")
	ErrBoardFull     = errors.New("no free cell to spawn")
)

// Publisher receives a full snapshot after every change of the session
type Publisher interface {
	Publish(protocol.StateUpdateData)
}

// EventSink receives gameplay events (the analytics Recorder)
type EventSink interface {
	Track(analytics.Event)
}

// Config holds the simulation rules
type Config struct {
	GridSize          int
	TickInterval      time.Duration
	ScoreIncrement    int
	DefaultDirection  protocol.Direction
	ResumeOnReconnect bool
	ReconnectGrace    time.Duration
}

// DefaultConfig returns a 20x20 board ticking every 150ms
func DefaultConfig() Config {
	return Config{
		GridSize:         20,
		TickInterval:     150 * time.Millisecond,
		ScoreIncrement:   1,
		DefaultDirection: protocol.Right,
		ReconnectGrace:   30 * time.Second,
	}
}

// Option customizes a Game
type Option func(*Game)

// WithRand makes food and spawn placement reproducible
func WithRand(rng *rand.Rand) Option { return func(g *Game) { g.rng = rng } }

// WithClock replaces the wall clock driving Run
func WithClock(c clockwork.Clock) Option { return func(g *Game) { g.clock = c } }

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option { return func(g *Game) { g.log = l } }

// WithPublisher sets the receiver of snapshots
func WithPublisher(p Publisher) Option { return func(g *Game) { g.pub = p } }

// WithEvents sets the gameplay event sink
func WithEvents(s EventSink) Option { return func(g *Game) { g.events = s } }

// Game holds the state for the one session of this process. All mutation
// happens under mu, so intents are applied strictly between ticks.
type Game struct {
	mu      sync.Mutex
	cfg     Config
	players map[string]*Player
	food    protocol.Cell
	occ     *Occupancy
	tick    uint64
	joinSeq uint64

	rng     *rand.Rand
	clock   clockwork.Clock
	log     *zap.SugaredLogger
	pub     Publisher
	events  EventSink
	resume  *resumeCache
	metrics Metrics
}

// New creates a Game with food placed on a random cell
func New(cfg Config, opts ...Option) *Game {
	if cfg.DefaultDirection == "" {
		cfg.DefaultDirection = protocol.Right
	}
	g := &Game{
		cfg:     cfg,
		players: make(map[string]*Player),
		occ:     NewOccupancy(cfg.GridSize),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:   clockwork.NewRealClock(),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if cfg.ResumeOnReconnect {
		g.resume = newResumeCache(cfg.ReconnectGrace)
	}
	g.food, _ = g.occ.RandomFree(g.rng)
	return g
}

// Run ticks the game every TickInterval until ctx is cancelled
func (g *Game) Run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			start := g.clock.Now()
			g.Tick()
			g.metrics.addTick(g.clock.Since(start).Nanoseconds())
		case <-ctx.Done():
			return
		}
	}
}

// ApplyJoin adds a player with a fresh single-cell snake. Nothing changes
// when an error is returned.
func (g *Game) ApplyJoin(id, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		g.metrics.incRejected()
		return ErrEmptyUsername
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.players[id]; ok {
		g.metrics.incRejected()
		return ErrAlreadyJoined
	}
	for _, p := range g.players {
		if p.Alive() && p.Username == username {
			g.metrics.incRejected()
			return ErrUsernameTaken
		}
	}

	g.rebuildOccupancy()
	p, resumed := g.restore(id, username)
	if p == nil {
		head, ok := g.occ.RandomFree(g.rng, g.food)
		if !ok {
			g.metrics.incRejected()
			return ErrBoardFull
		}
		p = NewPlayer(id, username, head, g.cfg.DefaultDirection)
	}
	g.joinSeq++
	p.joinSeq = g.joinSeq
	g.players[id] = p

	g.metrics.incJoins()
	evt := analytics.EvtJoin
	if resumed {
		g.metrics.incResumed()
		evt = analytics.EvtResume
	}
	g.track(evt, p)
	g.log.Infow("player joined", "id", id, "username", username, "head", p.Head(), "resumed", resumed)
	g.publishLocked()
	return nil
}

// restore rebuilds a stashed player when resume is enabled and its cells are
// still free of snakes and food
func (g *Game) restore(id, username string) (*Player, bool) {
	if g.resume == nil {
		return nil, false
	}
	s, ok := g.resume.take(id)
	if !ok || len(s.Snake) == 0 || !g.occ.Free(s.Snake...) || containsCell(s.Snake, g.food) {
		return nil, false
	}
	p := NewPlayer(id, username, s.Snake[0], s.Heading)
	p.Snake = s.Snake
	p.Score = s.Score
	return p, true
}

// ApplyLeave removes the player. Unknown ids are ignored.
func (g *Game) ApplyLeave(id string) {
	g.remove(id, false)
}

// ApplyDisconnect removes the player after its connection closed. With
// resume enabled an ALIVE player is stashed for the grace period.
func (g *Game) ApplyDisconnect(id string) {
	g.remove(id, true)
}

func (g *Game) remove(id string, stash bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return
	}
	if stash && g.resume != nil && p.Alive() {
		g.resume.put(p)
	}
	delete(g.players, id)
	g.metrics.incLeaves()
	g.track(analytics.EvtLeave, p)
	g.log.Infow("player left", "id", id, "username", p.Username, "score", p.Score, "disconnect", stash)
	g.publishLocked()
}

// ApplyMove queues a direction for the next tick. Moves for unknown or dead
// players, invalid directions and reversals are silently ignored.
func (g *Game) ApplyMove(id string, d protocol.Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok || !p.Alive() || !p.Steer(d) {
		g.metrics.incMovesIgnored()
	}
}

// Snapshot returns a deep copy of the current state
func (g *Game) Snapshot() protocol.StateUpdateData {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() protocol.StateUpdateData {
	ordered := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })

	data := protocol.StateUpdateData{
		Players: make([]protocol.PlayerData, 0, len(ordered)),
		Food:    g.food,
	}
	for _, p := range ordered {
		data.Players = append(data.Players, p.ToData())
	}
	return data
}

func (g *Game) publishLocked() {
	if g.pub == nil {
		return
	}
	g.pub.Publish(g.snapshotLocked())
}

func (g *Game) track(evtType string, p *Player) {
	if g.events == nil {
		return
	}
	g.events.Track(analytics.Event{
		Type:     evtType,
		PlayerID: p.ID,
		Username: p.Username,
		Tick:     g.tick,
		Score:    p.Score,
	})
}

// rebuildOccupancy marks every ALIVE snake on the grid
func (g *Game) rebuildOccupancy() {
	g.occ.Clear()
	for _, p := range g.players {
		if p.Alive() {
			g.occ.Mark(p.ID, p.Snake)
		}
	}
}

// Food returns the current food cell
func (g *Game) Food() protocol.Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.food
}

// PlayerCount returns the number of players, dead ones included
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// AliveCount returns the number of ALIVE players
func (g *Game) AliveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.players {
		if p.Alive() {
			n++
		}
	}
	return n
}

// TickCount returns how many ticks ran
func (g *Game) TickCount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// ScoreIncrement returns the points awarded per food
func (g *Game) ScoreIncrement() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.ScoreIncrement
}

// SetScoreIncrement changes the points awarded per food from the next tick on
func (g *Game) SetScoreIncrement(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.ScoreIncrement = n
}

// Config returns the rules in effect
func (g *Game) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Metrics exposes the session counters
func (g *Game) Metrics() *Metrics {
	return &g.metrics
}
