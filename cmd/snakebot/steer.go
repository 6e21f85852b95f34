package main

import (
	"github.com/cawio/snake/protocol"
	"github.com/cawio/snake/view"
)

var directions = []protocol.Direction{protocol.Up, protocol.Down, protocol.Left, protocol.Right}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// currentHeading reads the direction the snake moved last from its first two
// cells. A single-cell snake gives no hint, so fallback is returned.
func currentHeading(me protocol.PlayerData, fallback protocol.Direction) protocol.Direction {
	if len(me.Snake) < 2 {
		return fallback
	}
	for _, d := range directions {
		if me.Snake[1].Add(d) == me.Snake[0] {
			return d
		}
	}
	return fallback
}

// steer picks the next heading: the safe direction that gets closest to the
// food, never the reverse of heading. With no safe move it keeps heading.
func steer(v view.View, heading protocol.Direction, gridSize int) protocol.Direction {
	me, ok := v.Me()
	if !ok || len(me.Snake) == 0 {
		return heading
	}
	head := me.Snake[0]

	best := heading
	bestDist := -1
	for _, d := range directions {
		if d == heading.Opposite() {
			continue
		}
		next := head.Add(d)
		if !next.In(gridSize) || v.IsSnake(next) {
			continue
		}
		dist := abs(next.X-v.Food.X) + abs(next.Y-v.Food.Y)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}
