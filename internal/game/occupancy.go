package game

import (
	"math/rand"

	"github.com/cawio/snake/protocol"
)

// Occupancy is a fixed-size grid mapping every cell to the id of the ALIVE
// snake covering it ("" when free). It is rebuilt from scratch whenever the
// simulation needs a consistent view of the board.
type Occupancy struct {
	size  int
	cells []string
}

// NewOccupancy allocates a size x size grid
func NewOccupancy(size int) *Occupancy {
	return &Occupancy{size: size, cells: make([]string, size*size)}
}

// Clear resets all cells (keeps allocated capacity)
func (o *Occupancy) Clear() {
	for i := range o.cells {
		o.cells[i] = ""
	}
}

func (o *Occupancy) idx(c protocol.Cell) int {
	return c.Y*o.size + c.X
}

// Mark records owner on every cell of snake that lies on the grid
func (o *Occupancy) Mark(owner string, snake []protocol.Cell) {
	for _, c := range snake {
		if c.In(o.size) {
			o.cells[o.idx(c)] = owner
		}
	}
}

// Owner returns the id covering c, or "" for free or off-grid cells
func (o *Occupancy) Owner(c protocol.Cell) string {
	if !c.In(o.size) {
		return ""
	}
	return o.cells[o.idx(c)]
}

// Free reports whether every cell lies on the grid and is unoccupied
func (o *Occupancy) Free(cells ...protocol.Cell) bool {
	for _, c := range cells {
		if !c.In(o.size) || o.cells[o.idx(c)] != "" {
			return false
		}
	}
	return true
}

// RandomFree picks a uniformly random free cell that is not in exclude.
// ok is false when the board is full.
func (o *Occupancy) RandomFree(rng *rand.Rand, exclude ...protocol.Cell) (protocol.Cell, bool) {
	free := make([]protocol.Cell, 0, len(o.cells))
	for i, owner := range o.cells {
		if owner != "" {
			continue
		}
		c := protocol.Cell{X: i % o.size, Y: i / o.size}
		if containsCell(exclude, c) {
			continue
		}
		free = append(free, c)
	}
	if len(free) == 0 {
		return protocol.Cell{}, false
	}
	return free[rng.Intn(len(free))], true
}
