package game

import "github.com/cawio/snake/protocol"

// Death causes reported in logs and the event journal
const (
	CauseWall     = "wall"
	CauseSelf     = "self"
	CauseBody     = "body"
	CauseHeadOn   = "head-on"
	CauseInternal = "internal"
)

// collide is the collision rule plan applies; tests swap it
var collide = checkCollision

func containsCell(cells []protocol.Cell, c protocol.Cell) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}

// checkCollision decides whether a snake whose head moves to next dies,
// judged against the board before anyone moves this tick. The own tail is
// not an obstacle unless the snake grows, because it is vacated in the same
// step.
func checkCollision(p *Player, next protocol.Cell, grow bool, occ *Occupancy, size int) (cause string, dead bool) {
	if !next.In(size) {
		return CauseWall, true
	}
	owner := occ.Owner(next)
	switch {
	case owner == "":
		return "", false
	case owner == p.ID:
		if next == p.Tail() && !grow {
			return "", false
		}
		return CauseSelf, true
	default:
		return CauseBody, true
	}
}
