// Package seed selects the initial frontier of the flood-fill search.
package seed

import (
	"flood-mapper/internal/grid"
	"flood-mapper/internal/rivers"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/geom"
)

// Options configures seeding.
type Options struct {
	// MinRiverSize is the flow-accumulation threshold for the first
	// seeding rule.
	MinRiverSize float64
	// MaxTiles caps the number of river-derived tiles before margin
	// expansion.
	MaxTiles int
	// Margin is the half-width of the neighborhood added around each
	// selected tile, giving the classifier spatial context before the
	// search starts expanding on its own.
	Margin int
}

// DefaultOptions returns the seeding defaults.
func DefaultOptions() Options {
	return Options{MinRiverSize: 500, MaxTiles: 200, Margin: 2}
}

// Initial returns the starting frontier. Rules, first non-empty wins:
// significant rivers inside the validity polygon, then rivers of any size,
// then the single tile nearest the lattice center. Every selected tile is
// expanded by ±Margin, clipped to the lattice and deduplicated.
func Initial(net *rivers.Network, validity geom.Polygonal, lat *grid.Lattice, opts Options) []grid.Coord {
	tiles := riverTiles(net, validity, lat, opts.MinRiverSize, opts.MaxTiles)
	if len(tiles) == 0 {
		tiles = riverTiles(net, validity, lat, 0, opts.MaxTiles)
	}
	if len(tiles) == 0 {
		tiles = []grid.Coord{lat.Center()}
	}
	return expand(tiles, lat, opts.Margin)
}

// FromPrescribed maps externally supplied tile footprints to their covering
// lattice cells. A cell is included when the overlap exceeds 1% of the
// cell's area, so footprints from an earlier run land on the same cells
// despite floating-point drift.
func FromPrescribed(lat *grid.Lattice, footprints []geom.Polygon) []grid.Coord {
	overlap := map[grid.Coord]float64{}
	var order []grid.Coord
	for _, fp := range footprints {
		b := fp.Bounds()
		lo, hi, ok := lat.CoordRange(geometry.NewRect(
			b.Min.X, b.Min.Y, b.Max.X-b.Min.X, b.Max.Y-b.Min.Y))
		if !ok {
			continue
		}
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				c := grid.Coord{X: x, Y: y}
				inter := lat.Polygon(c).Intersection(fp)
				if inter == nil {
					continue
				}
				if _, seen := overlap[c]; !seen && inter.Area() > 0 {
					order = append(order, c)
				}
				overlap[c] += inter.Area()
			}
		}
	}

	var out []grid.Coord
	for _, c := range order {
		tileArea := lat.Polygon(c).Area()
		if overlap[c] > 0.01*tileArea {
			out = append(out, c)
		}
	}
	return out
}

// riverTiles returns the lattice cells touched by rivers above minSize that
// also reach into the validity polygon.
func riverTiles(net *rivers.Network, validity geom.Polygonal, lat *grid.Lattice, minSize float64, maxTiles int) []grid.Coord {
	if net == nil || net.Len() == 0 {
		return nil
	}
	segs := net.Within(validity.Bounds(), minSize)

	seen := map[grid.Coord]bool{}
	var out []grid.Coord
	for _, seg := range segs {
		if !touchesPolygon(seg.LineString, validity) {
			continue
		}
		b := seg.Bounds()
		lo, hi, ok := lat.CoordRange(geometry.NewRect(
			b.Min.X, b.Min.Y, b.Max.X-b.Min.X, b.Max.Y-b.Min.Y))
		if !ok {
			continue
		}
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				c := grid.Coord{X: x, Y: y}
				if seen[c] || !lineTouchesRect(seg.LineString, lat.Tile(c)) {
					continue
				}
				seen[c] = true
				out = append(out, c)
				if len(out) >= maxTiles {
					return out
				}
			}
		}
	}
	return out
}

// touchesPolygon reports whether the line intersects the polygon: a vertex
// inside it, or a segment crossing one of its ring edges. The second test
// catches reaches that cut across the polygon with every vertex outside.
func touchesPolygon(line geom.LineString, poly geom.Polygonal) bool {
	for _, p := range line {
		if p.Within(poly) == geom.Inside {
			return true
		}
	}
	for _, pg := range poly.Polygons() {
		for _, ring := range pg {
			for i := range ring {
				a := geometry.Point2D{X: ring[i].X, Y: ring[i].Y}
				next := ring[(i+1)%len(ring)]
				b := geometry.Point2D{X: next.X, Y: next.Y}
				for j := 0; j+1 < len(line); j++ {
					p := geometry.Point2D{X: line[j].X, Y: line[j].Y}
					q := geometry.Point2D{X: line[j+1].X, Y: line[j+1].Y}
					if geometry.SegmentsIntersect(p, q, a, b) {
						return true
					}
				}
			}
		}
	}
	return false
}

// lineTouchesRect reports whether any segment of the line crosses the rect.
func lineTouchesRect(line geom.LineString, r geometry.Rect) bool {
	for i := 0; i+1 < len(line); i++ {
		a := geometry.Point2D{X: line[i].X, Y: line[i].Y}
		b := geometry.Point2D{X: line[i+1].X, Y: line[i+1].Y}
		if geometry.SegmentIntersectsRect(a, b, r) {
			return true
		}
	}
	return false
}

// expand grows each tile into its ±margin neighborhood, preserving first
// appearance order.
func expand(tiles []grid.Coord, lat *grid.Lattice, margin int) []grid.Coord {
	seen := map[grid.Coord]bool{}
	var out []grid.Coord
	push := func(c grid.Coord) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, t := range tiles {
		push(t)
	}
	for _, t := range tiles {
		for _, c := range lat.Window(t, margin) {
			push(c)
		}
	}
	return out
}
