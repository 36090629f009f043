// Package grid builds the tile lattices that the flood-fill search walks.
//
// Four lattices are derived from one reference transform: a primary lattice
// and three offset by half a tile in x, y, and both. All four are anchored
// to integer pixel coordinates before being mapped to world space, so a
// tile in any lattice covers an exact pixel window in every raster opened
// with that transform.
package grid

import (
	"errors"
	"fmt"
	"math"

	"flood-mapper/pkg/geometry"

	"github.com/ctessum/geom"
)

// ErrInvalidFootprint is returned when the validity footprint is too small
// to hold a single tile after the one-pixel shrink.
var ErrInvalidFootprint = errors.New("grid: validity footprint too small")

// Coord identifies a cell in a lattice. It is the search-state key,
// distinct from the cell's geometry.
type Coord struct {
	X, Y int
}

// Lattice is a 2-D arrangement of equally sized tiles anchored at a pixel
// origin.
type Lattice struct {
	originX  int // pixel coordinates in the reference grid
	originY  int
	tileSize int
	NX, NY   int
	tr       geometry.AffineTransform
}

// Contains reports whether the coordinate addresses a cell of the lattice.
func (l *Lattice) Contains(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < l.NX && c.Y < l.NY
}

// Center returns the coordinate nearest the lattice center.
func (l *Lattice) Center() Coord {
	return Coord{X: l.NX / 2, Y: l.NY / 2}
}

// PixelRect returns the tile's rectangle in reference pixel coordinates.
func (l *Lattice) PixelRect(c Coord) geometry.Rect {
	s := float64(l.tileSize)
	return geometry.NewRect(float64(l.originX+c.X*l.tileSize),
		float64(l.originY+c.Y*l.tileSize), s, s)
}

// Tile returns the tile's footprint in world coordinates.
func (l *Lattice) Tile(c Coord) geometry.Rect {
	return l.tr.ApplyRect(l.PixelRect(c))
}

// Polygon returns the tile footprint as a closed polygon for vector output
// and area-overlap tests.
func (l *Lattice) Polygon(c Coord) geom.Polygon {
	r := l.Tile(c)
	return geom.Polygon{{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}}
}

// CoordAt returns the cell containing the world-space point.
func (l *Lattice) CoordAt(p geometry.Point2D) (Coord, bool) {
	inv, ok := l.tr.Inverse()
	if !ok {
		return Coord{}, false
	}
	q := inv.Apply(p)
	c := Coord{
		X: int(math.Floor((q.X - float64(l.originX)) / float64(l.tileSize))),
		Y: int(math.Floor((q.Y - float64(l.originY)) / float64(l.tileSize))),
	}
	return c, l.Contains(c)
}

// CoordRange returns the inclusive cell range overlapped by the world-space
// rectangle, clipped to the lattice. ok is false when nothing overlaps.
func (l *Lattice) CoordRange(r geometry.Rect) (lo, hi Coord, ok bool) {
	inv, invOK := l.tr.Inverse()
	if !invOK {
		return Coord{}, Coord{}, false
	}
	pr := inv.ApplyRect(r)
	s := float64(l.tileSize)
	lo = Coord{
		X: int(math.Floor((pr.X - float64(l.originX)) / s)),
		Y: int(math.Floor((pr.Y - float64(l.originY)) / s)),
	}
	hi = Coord{
		X: int(math.Floor((pr.X + pr.Width - float64(l.originX)) / s)),
		Y: int(math.Floor((pr.Y + pr.Height - float64(l.originY)) / s)),
	}
	lo.X, lo.Y = max(lo.X, 0), max(lo.Y, 0)
	hi.X, hi.Y = min(hi.X, l.NX-1), min(hi.Y, l.NY-1)
	return lo, hi, lo.X <= hi.X && lo.Y <= hi.Y
}

// Set holds the four aligned lattices plus the pixel-snapped validity
// envelope used for tile-in-bounds tests.
type Set struct {
	Primary  *Lattice
	OffsetX  *Lattice
	OffsetY  *Lattice
	OffsetXY *Lattice

	// Footprint is the shrunk, pixel-aligned validity envelope in world
	// coordinates.
	Footprint geometry.Rect
	TileSize  int
}

// Build derives the lattice set from a validity polygon, the reference
// affine transform and the tile edge length in pixels. tileSize must be
// even so that half-tile offsets land on whole pixels.
func Build(validity geom.Polygonal, tr geometry.AffineTransform, tileSize int) (*Set, error) {
	if tileSize < 2 || tileSize%2 != 0 {
		return nil, fmt.Errorf("grid: tile size %d must be even and positive", tileSize)
	}
	inv, ok := tr.Inverse()
	if !ok {
		return nil, fmt.Errorf("grid: singular reference transform")
	}

	// Project the validity bounds into pixel space. All four corners go
	// through the inverse transform because a negative y pixel size flips
	// the vertical axis.
	b := validity.Bounds()
	pxlo, pxhi := math.Inf(1), math.Inf(-1)
	pylo, pyhi := math.Inf(1), math.Inf(-1)
	for _, p := range [4]geom.Point{
		{X: b.Min.X, Y: b.Min.Y}, {X: b.Max.X, Y: b.Min.Y},
		{X: b.Min.X, Y: b.Max.Y}, {X: b.Max.X, Y: b.Max.Y},
	} {
		q := inv.Apply(geometry.Point2D{X: p.X, Y: p.Y})
		pxlo, pxhi = math.Min(pxlo, q.X), math.Max(pxhi, q.X)
		pylo, pyhi = math.Min(pylo, q.Y), math.Max(pyhi, q.Y)
	}

	// Shrink by one pixel on each side so every tile keeps a pixel of
	// margin for resampling against rasters with slightly different
	// footprints, then snap to whole pixels.
	xlo := int(math.Ceil(pxlo)) + 1
	ylo := int(math.Ceil(pylo)) + 1
	xhi := int(math.Floor(pxhi)) - 1
	yhi := int(math.Floor(pyhi)) - 1
	w, h := xhi-xlo, yhi-ylo
	if w < tileSize || h < tileSize {
		return nil, fmt.Errorf("%w: %dx%d px after shrink, tile size %d",
			ErrInvalidFootprint, w, h, tileSize)
	}

	s := tileSize
	half := s / 2
	mk := func(ox, oy, w, h int) *Lattice {
		nx, ny := w/s, h/s
		if nx < 0 {
			nx = 0
		}
		if ny < 0 {
			ny = 0
		}
		return &Lattice{originX: ox, originY: oy, tileSize: s, NX: nx, NY: ny, tr: tr}
	}

	set := &Set{
		Primary:  mk(xlo, ylo, w, h),
		OffsetX:  mk(xlo+half, ylo, w-s, h),
		OffsetY:  mk(xlo, ylo+half, w, h-s),
		OffsetXY: mk(xlo+half, ylo+half, w-s, h-s),
		TileSize: s,
	}
	set.Footprint = tr.ApplyRect(geometry.NewRect(
		float64(xlo), float64(ylo), float64(w), float64(h)))
	return set, nil
}

// OutputTransform returns the affine transform of the output rasters: the
// reference grid translated to the lattice origin.
func (s *Set) OutputTransform() geometry.AffineTransform {
	l := s.Primary
	origin := l.tr.Apply(geometry.Point2D{X: float64(l.originX), Y: float64(l.originY)})
	out := l.tr
	out.TX = origin.X
	out.TY = origin.Y
	return out
}

// OutputSize returns the pixel dimensions of the output rasters, covering
// exactly the complete tiles of the primary lattice.
func (s *Set) OutputSize() (width, height int) {
	return s.Primary.NX * s.TileSize, s.Primary.NY * s.TileSize
}

// Window returns the coordinates within ±add of c, clipped to the lattice
// bounds. Expansion never yields a coordinate outside the lattice.
func (l *Lattice) Window(c Coord, add int) []Coord {
	xlo := max(0, c.X-add)
	xhi := min(l.NX-1, c.X+add)
	ylo := max(0, c.Y-add)
	yhi := min(l.NY-1, c.Y+add)
	var out []Coord
	for x := xlo; x <= xhi; x++ {
		for y := ylo; y <= yhi; y++ {
			out = append(out, Coord{X: x, Y: y})
		}
	}
	return out
}
