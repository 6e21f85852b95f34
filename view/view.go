// Package view derives what a client renders from the latest snapshot: who is
// alive, the score ranking and per-cell lookups for the local player.
//
// Cell lookups scan every alive snake, so a query costs
// O(players x snake length). That is fine for a 20x20 board with a handful of
// players; a larger board would want an occupancy grid built once per
// snapshot.
package view

import (
	"sort"

	"github.com/cawio/snake/protocol"
)

// View is an immutable projection of one snapshot for one client
type View struct {
	LocalID string
	// ALIVE players in snapshot order
	Players []protocol.PlayerData
	// Players sorted by score, highest first; ties keep snapshot order
	PlayersByScore []protocol.PlayerData
	Food           protocol.Cell
	// Score and Alive describe the local player; zero values when it is not
	// in Players
	Score int
	Alive bool
}

// Project builds the View of s as seen by localID
func Project(s protocol.StateUpdateData, localID string) View {
	v := View{LocalID: localID, Food: s.Food}
	for _, p := range s.Players {
		if p.State != protocol.Alive {
			continue
		}
		v.Players = append(v.Players, p)
		if p.ID == localID {
			v.Score = p.Score
			v.Alive = true
		}
	}

	v.PlayersByScore = make([]protocol.PlayerData, len(v.Players))
	copy(v.PlayersByScore, v.Players)
	sort.SliceStable(v.PlayersByScore, func(i, j int) bool {
		return v.PlayersByScore[i].Score > v.PlayersByScore[j].Score
	})
	return v
}

// IsSnake reports whether any alive snake covers c
func (v View) IsSnake(c protocol.Cell) bool {
	for _, p := range v.Players {
		if contains(p.Snake, c) {
			return true
		}
	}
	return false
}

// IsFood reports whether c holds the food
func (v View) IsFood(c protocol.Cell) bool {
	return v.Food == c
}

// IsMySnake reports whether the local player's snake covers c
func (v View) IsMySnake(c protocol.Cell) bool {
	for _, p := range v.Players {
		if p.ID == v.LocalID {
			return contains(p.Snake, c)
		}
	}
	return false
}

// Me returns the local player when it is alive
func (v View) Me() (protocol.PlayerData, bool) {
	for _, p := range v.Players {
		if p.ID == v.LocalID {
			return p, true
		}
	}
	return protocol.PlayerData{}, false
}

func contains(cells []protocol.Cell, c protocol.Cell) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}
