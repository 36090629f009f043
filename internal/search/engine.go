// Package search implements the frontier-driven flood-fill over the tile
// lattices: pop a tile, classify it, blend with its offset-lattice
// neighbors, write the class window, and expand toward flooded neighbors.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"flood-mapper/internal/blend"
	"flood-mapper/internal/classify"
	"flood-mapper/internal/grid"
	"flood-mapper/internal/raster"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Engine runs one flood-fill search. The control loop is sequential by
// design: whether a tile's neighbors get enqueued depends on the tile's
// just-computed classification. Only the up-to-eight offset-lattice
// classifications within a single visit run in parallel.
type Engine struct {
	Stack      *raster.Stack
	Grids      *grid.Set
	Classifier classify.Classifier
	Out        *raster.ClassRaster
	// Validity is the irregular footprint of usable data, typically the
	// intersection of the input scene footprints. Tiles not fully inside
	// it are skipped without consulting the oracle. Nil disables the
	// check, leaving only the lattice envelope as a bound.
	Validity geom.Polygonal
	// Export receives the input patches of every classified tile, one
	// raster per stack entry. Nil disables the export.
	Export []*raster.ExportRaster
	Params Params
	Log    *slog.Logger

	cache *OffsetCache
}

// NewEngine assembles an engine. The caller owns the rasters and the
// output; the engine owns only the per-run search state.
func NewEngine(stack *raster.Stack, grids *grid.Set, validity geom.Polygonal, cls classify.Classifier, out *raster.ClassRaster, params Params, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Stack:      stack,
		Grids:      grids,
		Validity:   validity,
		Classifier: cls,
		Out:        out,
		Params:     params,
		Log:        log,
		cache:      NewOffsetCache(),
	}
}

// Run drains the frontier seeded with the given coordinates. It returns
// when the frontier empties or the visit cap is reached; the cap is a
// deliberate early termination, not an error, and the results up to that
// point are valid.
func (e *Engine) Run(ctx context.Context, seeds []grid.Coord) (*Result, error) {
	lat := e.Grids.Primary
	frontier := NewFrontier(lat.NX, lat.NY)
	for _, c := range seeds {
		frontier.Push(c)
	}

	visited := make([][]bool, lat.NX)
	for i := range visited {
		visited[i] = make([]bool, lat.NY)
	}

	res := &Result{}
	for frontier.Len() > 0 && res.Visited < e.Params.MaxTiles {
		c, _ := frontier.Pop()
		visited[c.X][c.Y] = true
		res.Visited++

		rec, err := e.visit(ctx, c)
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, rec)

		switch rec.Disposition {
		case DispositionOutside:
			res.Outside++
		case DispositionLargeWater:
			res.LargeWater++
		case DispositionFlooded:
			res.Flooded++
			for _, n := range lat.Window(c, e.Params.ExpandRadius) {
				if !visited[n.X][n.Y] {
					frontier.Push(n)
				}
			}
		}

		if e.Params.LogFrequency > 0 && res.Visited%e.Params.LogFrequency == 0 {
			e.logProgress(frontier, res)
		}
	}
	e.logProgress(frontier, res)

	res.MajorFlooding = res.Flooded >= e.Params.MajorFloodTiles
	return res, nil
}

// visit classifies one primary-lattice tile and writes its class window.
func (e *Engine) visit(ctx context.Context, c grid.Coord) (VisitRecord, error) {
	tile := e.Grids.Primary.Tile(c)
	rec := VisitRecord{Coord: c, Tile: tile, Disposition: DispositionOutside}

	// The lattice bounds keep tiles inside the pixel-aligned envelope,
	// but the usable data is the irregular validity polygon within it:
	// tiles in the envelope's corners can still sit on invalid data.
	if !e.insideValidity(tile) {
		return rec, nil
	}

	cls, err := e.Classifier.Classify(ctx, e.Stack, tile)
	if err != nil {
		return rec, fmt.Errorf("search: tile (%d,%d): %w", c.X, c.Y, err)
	}
	if cls.Logits == nil || !EdgeValid(cls.Patches, e.Params.EdgeZeroFraction) {
		return rec, nil
	}

	blended, err := blend.Apply(cls.Logits, e.adjacentLogits(ctx, c))
	if err != nil {
		return rec, fmt.Errorf("search: tile (%d,%d): %w", c.X, c.Y, err)
	}

	classes := blend.Argmax(blended)
	h, w := blended.Shape[1], blended.Shape[2]
	if err := e.Out.WriteWindow(tile, classes, h, w); err != nil {
		return rec, fmt.Errorf("search: tile (%d,%d): %w", c.X, c.Y, err)
	}
	if e.Export != nil {
		for i, patch := range cls.Patches {
			if i >= len(e.Export) {
				break
			}
			if err := e.Export[i].WriteWindow(tile, patch); err != nil {
				return rec, fmt.Errorf("search: tile (%d,%d): %w", c.X, c.Y, err)
			}
		}
	}

	rec.Stats = StatsFromClasses(classes)
	total := float64(rec.Stats.Total())
	pw := float64(rec.Stats.PermanentWater) / total
	bg := float64(rec.Stats.Background) / total
	switch {
	case pw > e.Params.LargeWaterPW || bg < e.Params.LargeWaterBG:
		rec.Disposition = DispositionLargeWater
	case rec.Stats.FloodFraction() > e.Params.FloodThreshold:
		rec.Disposition = DispositionFlooded
	default:
		rec.Disposition = DispositionDry
	}
	return rec, nil
}

// adjacentLogits fetches the eight offset-lattice classifications around a
// primary tile, at most Params.Workers at a time. The offset lattices sit
// half a tile toward positive x/y, so cell (x, y) of an offset lattice lies
// to the bottom/right of primary cell (x, y) and (x-1, y-1) to the
// top/left.
func (e *Engine) adjacentLogits(ctx context.Context, c grid.Coord) blend.Neighbors {
	type request struct {
		id      LatticeID
		lattice *grid.Lattice
		c       grid.Coord
		dst     **sparse.DenseArray
	}
	var nb blend.Neighbors
	reqs := []request{
		{LatticeOffsetX, e.Grids.OffsetX, grid.Coord{X: c.X - 1, Y: c.Y}, &nb.Le},
		{LatticeOffsetX, e.Grids.OffsetX, grid.Coord{X: c.X, Y: c.Y}, &nb.Ri},
		{LatticeOffsetY, e.Grids.OffsetY, grid.Coord{X: c.X, Y: c.Y - 1}, &nb.Up},
		{LatticeOffsetY, e.Grids.OffsetY, grid.Coord{X: c.X, Y: c.Y}, &nb.Do},
		{LatticeOffsetXY, e.Grids.OffsetXY, grid.Coord{X: c.X - 1, Y: c.Y - 1}, &nb.TL},
		{LatticeOffsetXY, e.Grids.OffsetXY, grid.Coord{X: c.X, Y: c.Y - 1}, &nb.TR},
		{LatticeOffsetXY, e.Grids.OffsetXY, grid.Coord{X: c.X - 1, Y: c.Y}, &nb.BL},
		{LatticeOffsetXY, e.Grids.OffsetXY, grid.Coord{X: c.X, Y: c.Y}, &nb.BR},
	}

	workers := e.Params.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, r := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(r request) {
			defer wg.Done()
			defer func() { <-sem }()
			*r.dst = e.cache.Get(r.id, r.c, func() *sparse.DenseArray {
				return e.offsetLogits(ctx, r.lattice, r.c)
			})
		}(r)
	}
	wg.Wait()
	return nb
}

// insideValidity reports whether the tile is entirely covered by the
// validity polygon: the intersection must recover the whole tile area.
func (e *Engine) insideValidity(tile geometry.Rect) bool {
	if e.Validity == nil {
		return true
	}
	poly := geom.Polygon{{
		{X: tile.X, Y: tile.Y},
		{X: tile.X + tile.Width, Y: tile.Y},
		{X: tile.X + tile.Width, Y: tile.Y + tile.Height},
		{X: tile.X, Y: tile.Y + tile.Height},
	}}
	inter := poly.Intersection(e.Validity)
	if inter == nil {
		return false
	}
	return inter.Area() >= poly.Area()*(1-1e-9)
}

// offsetLogits classifies one offset-lattice cell, returning nil for cells
// outside the lattice or unusable tiles. Classifier errors on neighbor
// tiles degrade to an absent neighbor rather than aborting the search.
func (e *Engine) offsetLogits(ctx context.Context, lat *grid.Lattice, c grid.Coord) *sparse.DenseArray {
	if !lat.Contains(c) {
		return nil
	}
	cls, err := e.Classifier.Classify(ctx, e.Stack, lat.Tile(c))
	if err != nil {
		e.Log.Warn("offset tile classification failed",
			"x", c.X, "y", c.Y, "err", err)
		return nil
	}
	return cls.Logits
}

// EdgeValid applies the edge-validity heuristic to the oracle's raw image
// inputs: a patch containing NaN pixels, or with at least maxZeroFrac of
// near-zero pixels, is a strong signal the tile straddles the edge of the
// source image's valid data. Radar amplitudes are non-negative, so any
// value below the threshold counts as a fill pixel.
func EdgeValid(patches []*sparse.DenseArray, maxZeroFrac float64) bool {
	for _, p := range patches {
		zeros := 0
		for _, v := range p.Elements {
			if math.IsNaN(v) {
				return false
			}
			if v < 1e-5 {
				zeros++
			}
		}
		if float64(zeros) >= float64(len(p.Elements))*maxZeroFrac {
			return false
		}
	}
	return true
}

func (e *Engine) logProgress(f *Frontier, res *Result) {
	e.Log.Info("search progress",
		"open", f.Len(),
		"visited", res.Visited,
		"flooded", res.Flooded,
		"large_water", res.LargeWater,
		"outside", res.Outside,
	)
}
