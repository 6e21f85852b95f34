package game

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cawio/snake/protocol"
)

// stashed is what survives a dropped connection while the grace period runs
type stashed struct {
	Snake   []protocol.Cell
	Heading protocol.Direction
	Score   int
}

// resumeCache keeps ALIVE players that lost their connection so the same id
// can pick up where it left off
type resumeCache struct {
	c *cache.Cache
}

func newResumeCache(grace time.Duration) *resumeCache {
	return &resumeCache{c: cache.New(grace, 2*grace)}
}

func (r *resumeCache) put(p *Player) {
	snake := make([]protocol.Cell, len(p.Snake))
	copy(snake, p.Snake)
	r.c.SetDefault(p.ID, stashed{Snake: snake, Heading: p.Heading, Score: p.Score})
}

// take removes and returns the stash for id
func (r *resumeCache) take(id string) (stashed, bool) {
	v, ok := r.c.Get(id)
	if !ok {
		return stashed{}, false
	}
	r.c.Delete(id)
	return v.(stashed), true
}

func (r *resumeCache) len() int {
	return r.c.ItemCount()
}
