package game

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cawio/snake/protocol"
)

func TestSteer(t *testing.T) {
	tests := []struct {
		heading protocol.Direction
		move    protocol.Direction
		ok      bool
	}{
		{protocol.Right, protocol.Up, true},
		{protocol.Right, protocol.Down, true},
		{protocol.Right, protocol.Right, true},
		{protocol.Right, protocol.Left, false},
		{protocol.Up, protocol.Down, false},
		{protocol.Up, "diagonal", false},
		{protocol.Up, "", false},
	}
	for _, tt := range tests {
		p := NewPlayer("id", "alice", c(3, 3), tt.heading)
		if got := p.Steer(tt.move); got != tt.ok {
			t.Errorf("heading %s, steer %q: got %v, want %v", tt.heading, tt.move, got, tt.ok)
		}
	}
}

func TestNextHeadingConsumesPending(t *testing.T) {
	p := NewPlayer("id", "alice", c(3, 3), protocol.Right)
	p.Steer(protocol.Up)

	if d := p.nextHeading(); d != protocol.Up {
		t.Errorf("got %s, want up", d)
	}
	if p.Pending != "" {
		t.Error("pending should be cleared")
	}
	if d := p.nextHeading(); d != protocol.Up {
		t.Errorf("heading should persist, got %s", d)
	}
}

func TestAdvance(t *testing.T) {
	p := NewPlayer("id", "alice", c(3, 3), protocol.Right)
	p.Snake = []protocol.Cell{c(3, 3), c(2, 3), c(1, 3)}

	p.Advance(c(4, 3), false)
	if diff := cmp.Diff([]protocol.Cell{c(4, 3), c(3, 3), c(2, 3)}, p.Snake); diff != "" {
		t.Errorf("advance mismatch (-want +got):\n%s", diff)
	}

	p.Advance(c(5, 3), true)
	if diff := cmp.Diff([]protocol.Cell{c(5, 3), c(4, 3), c(3, 3), c(2, 3)}, p.Snake); diff != "" {
		t.Errorf("grow mismatch (-want +got):\n%s", diff)
	}
}

func TestKillKeepsSnake(t *testing.T) {
	p := NewPlayer("id", "alice", c(3, 3), protocol.Right)
	p.Steer(protocol.Up)
	p.Kill()

	if p.Alive() || p.Pending != "" {
		t.Errorf("state %s pending %q", p.State, p.Pending)
	}
	if p.Head() != c(3, 3) {
		t.Error("dead player should keep its cells")
	}
	if p.ToData().State != protocol.Dead {
		t.Error("ToData should report DEAD")
	}
}

func TestOccupancy(t *testing.T) {
	o := NewOccupancy(4)
	o.Mark("a", []protocol.Cell{c(0, 0), c(1, 0)})
	o.Mark("b", []protocol.Cell{c(3, 3), c(4, 3)}) // second cell off-grid

	if o.Owner(c(1, 0)) != "a" || o.Owner(c(3, 3)) != "b" {
		t.Error("owners not recorded")
	}
	if o.Owner(c(4, 3)) != "" || o.Owner(c(-1, 0)) != "" {
		t.Error("off-grid cells have no owner")
	}
	if o.Free(c(2, 2), c(0, 0)) {
		t.Error("occupied cell reported free")
	}
	if o.Free(c(4, 0)) {
		t.Error("off-grid cell reported free")
	}
	if !o.Free(c(2, 2), c(0, 3)) {
		t.Error("empty cells reported occupied")
	}

	o.Clear()
	if !o.Free(c(0, 0), c(3, 3)) {
		t.Error("Clear left owners behind")
	}
}

func TestRandomFree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	o := NewOccupancy(3)
	o.Mark("a", []protocol.Cell{c(0, 0), c(1, 0), c(2, 0), c(0, 1), c(1, 1), c(2, 1), c(0, 2)})

	for i := 0; i < 50; i++ {
		got, ok := o.RandomFree(rng, c(1, 2))
		if !ok || got != c(2, 2) {
			t.Fatalf("got %v %v, want the only non-excluded free cell (2,2)", got, ok)
		}
	}

	o.Mark("a", []protocol.Cell{c(2, 2)})
	if _, ok := o.RandomFree(rng, c(1, 2)); ok {
		t.Error("expected no free cell")
	}
}

func TestRandomFreeCoversBoard(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	o := NewOccupancy(3)
	seen := map[protocol.Cell]bool{}
	for i := 0; i < 1000; i++ {
		cell, _ := o.RandomFree(rng)
		seen[cell] = true
	}
	if len(seen) != 9 {
		t.Errorf("uniform pick visited %d of 9 cells", len(seen))
	}
}

func TestCheckCollision(t *testing.T) {
	me := NewPlayer("me", "me", c(2, 2), protocol.Right)
	me.Snake = []protocol.Cell{c(2, 2), c(2, 3), c(1, 3), c(1, 2)}
	other := NewPlayer("other", "other", c(4, 2), protocol.Up)
	other.Snake = []protocol.Cell{c(4, 2), c(4, 3)}

	o := NewOccupancy(6)
	o.Mark(me.ID, me.Snake)
	o.Mark(other.ID, other.Snake)

	tests := []struct {
		name  string
		next  protocol.Cell
		grow  bool
		cause string
		dead  bool
	}{
		{"free", c(3, 2), false, "", false},
		{"wall", c(2, -1), false, CauseWall, true},
		{"own body", c(2, 3), false, CauseSelf, true},
		{"own tail", c(1, 2), false, "", false},
		{"own tail growing", c(1, 2), true, CauseSelf, true},
		{"other head", c(4, 2), false, CauseBody, true},
		{"other tail", c(4, 3), false, CauseBody, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause, dead := checkCollision(me, tt.next, tt.grow, o, 6)
			if cause != tt.cause || dead != tt.dead {
				t.Errorf("got (%q, %v), want (%q, %v)", cause, dead, tt.cause, tt.dead)
			}
		})
	}
}
