package search

import (
	"sync"

	"flood-mapper/internal/grid"

	"github.com/ctessum/sparse"
)

// LatticeID names one of the three half-tile-offset lattices.
type LatticeID int

const (
	LatticeOffsetX LatticeID = iota
	LatticeOffsetY
	LatticeOffsetXY
)

type cacheKey struct {
	lat LatticeID
	c   grid.Coord
}

type cacheEntry struct {
	once   sync.Once
	logits *sparse.DenseArray
}

// OffsetCache memoizes offset-lattice classifications. Each (lattice,
// coordinate) is computed exactly once no matter how many primary tiles
// request it, including under concurrent requests from the neighbor worker
// pool. It lives for one search run.
type OffsetCache struct {
	mu sync.Mutex
	m  map[cacheKey]*cacheEntry
}

// NewOffsetCache creates an empty cache.
func NewOffsetCache() *OffsetCache {
	return &OffsetCache{m: map[cacheKey]*cacheEntry{}}
}

// Get returns the cached logits for the key, invoking compute on first
// request. A nil result (outside lattice, unusable tile) is cached too.
func (o *OffsetCache) Get(lat LatticeID, c grid.Coord, compute func() *sparse.DenseArray) *sparse.DenseArray {
	key := cacheKey{lat: lat, c: c}
	o.mu.Lock()
	e, ok := o.m[key]
	if !ok {
		e = &cacheEntry{}
		o.m[key] = e
	}
	o.mu.Unlock()

	e.once.Do(func() {
		e.logits = compute()
	})
	return e.logits
}
