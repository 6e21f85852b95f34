package game

import (
	"fmt"
	"sort"

	"github.com/cawio/snake/internal/analytics"
	"github.com/cawio/snake/protocol"
)

// plannedMove is one ALIVE player's step, decided before anything moves
type plannedMove struct {
	p     *Player
	next  protocol.Cell
	grow  bool
	dead  bool
	cause string
}

// Tick advances the session by one step and broadcasts the result when
// anything changed. Every collision is judged against the board as it was
// before the tick, so the order players are visited in cannot bias outcomes.
func (g *Game) Tick() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++
	changed := g.step()
	if changed {
		g.publishLocked()
	}
	return changed
}

func (g *Game) step() bool {
	alive := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		if p.Alive() {
			alive = append(alive, p)
		}
	}
	if len(alive) == 0 {
		return false
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i].ID < alive[j].ID })

	g.rebuildOccupancy()

	moves := make([]plannedMove, 0, len(alive))
	heads := make(map[protocol.Cell]int, len(alive))
	for _, p := range alive {
		mv := g.plan(p)
		if !mv.dead {
			heads[mv.next]++
		}
		moves = append(moves, mv)
	}

	// Two or more heads entering the same cell kill everyone involved,
	// including a race for the food cell.
	for i := range moves {
		if !moves[i].dead && heads[moves[i].next] > 1 {
			moves[i].dead = true
			moves[i].cause = CauseHeadOn
		}
	}

	ate := false
	for _, mv := range moves {
		if mv.dead {
			mv.p.Kill()
			g.metrics.incDeaths()
			g.track(analytics.EvtDeath, mv.p)
			g.log.Infow("player died", "id", mv.p.ID, "username", mv.p.Username, "cause", mv.cause, "score", mv.p.Score, "tick", g.tick)
			continue
		}
		mv.p.Advance(mv.next, mv.grow)
		if mv.grow {
			ate = true
			mv.p.Score += g.cfg.ScoreIncrement
			g.metrics.incFoodEaten()
			g.track(analytics.EvtFood, mv.p)
		}
	}

	if ate {
		g.relocateFood()
	}
	return true
}

// plan computes where p's head goes and whether that kills it. A fault while
// planning is fatal to p only.
func (g *Game) plan(p *Player) (mv plannedMove) {
	mv.p = p
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorw("simulation fault", "id", p.ID, "panic", fmt.Sprint(r), "tick", g.tick)
			mv.dead = true
			mv.cause = CauseInternal
		}
	}()

	if len(p.Snake) == 0 {
		g.log.Errorw("snake without cells", "id", p.ID, "tick", g.tick)
		mv.dead = true
		mv.cause = CauseInternal
		return mv
	}

	mv.next = p.Head().Add(p.nextHeading())
	mv.grow = mv.next == g.food
	mv.cause, mv.dead = collide(p, mv.next, mv.grow, g.occ, g.cfg.GridSize)
	return mv
}

// relocateFood moves the food to a random cell no ALIVE snake covers
func (g *Game) relocateFood() {
	g.rebuildOccupancy()
	food, ok := g.occ.RandomFree(g.rng)
	if !ok {
		g.log.Warnw("board full, food stays in place", "tick", g.tick)
		return
	}
	g.food = food
}
