package search

import "flood-mapper/internal/grid"

// Frontier is the FIFO of tile coordinates awaiting a visit. A parallel
// boolean mask gives O(1) membership tests, and a coordinate can enter the
// frontier at most once over the whole search, which together with the
// visited mask guarantees no tile is classified twice.
type Frontier struct {
	queue    []grid.Coord
	enqueued [][]bool
}

// NewFrontier creates a frontier for an nx-by-ny lattice.
func NewFrontier(nx, ny int) *Frontier {
	mask := make([][]bool, nx)
	for i := range mask {
		mask[i] = make([]bool, ny)
	}
	return &Frontier{enqueued: mask}
}

// Push appends the coordinate unless it was ever enqueued before or lies
// outside the lattice.
func (f *Frontier) Push(c grid.Coord) {
	if c.X < 0 || c.Y < 0 || c.X >= len(f.enqueued) || c.Y >= len(f.enqueued[0]) {
		return
	}
	if f.enqueued[c.X][c.Y] {
		return
	}
	f.enqueued[c.X][c.Y] = true
	f.queue = append(f.queue, c)
}

// Pop removes and returns the front coordinate.
func (f *Frontier) Pop() (grid.Coord, bool) {
	if len(f.queue) == 0 {
		return grid.Coord{}, false
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	return c, true
}

// Len returns the number of coordinates waiting.
func (f *Frontier) Len() int { return len(f.queue) }
