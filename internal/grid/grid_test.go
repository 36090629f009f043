package grid

import (
	"testing"

	"flood-mapper/pkg/geometry"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// worldBox returns a rectangular validity polygon in world coordinates.
func worldBox(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

// testSet builds a 5x5 primary lattice: a 42x42 px footprint shrinks to
// 40x40, five tiles of 8 px per axis.
func testSet(t *testing.T) *Set {
	t.Helper()
	tr := geometry.FromOrigin(0, 100, 1, 1)
	set, err := Build(worldBox(0, 58, 42, 100), tr, 8)
	require.NoError(t, err)
	return set
}

func TestBuildLatticeCounts(t *testing.T) {
	set := testSet(t)

	assert.Equal(t, 5, set.Primary.NX)
	assert.Equal(t, 5, set.Primary.NY)
	assert.Equal(t, 4, set.OffsetX.NX)
	assert.Equal(t, 5, set.OffsetX.NY)
	assert.Equal(t, 5, set.OffsetY.NX)
	assert.Equal(t, 4, set.OffsetY.NY)
	assert.Equal(t, 4, set.OffsetXY.NX)
	assert.Equal(t, 4, set.OffsetXY.NY)
}

func TestBuildFootprintShrinks(t *testing.T) {
	set := testSet(t)

	// One-pixel shrink on every side of the 42x42 px box, mapped to world.
	assert.Equal(t, geometry.NewRect(1, 59, 40, 40), set.Footprint)
}

func TestLatticeHalfTileOffsets(t *testing.T) {
	set := testSet(t)
	c := Coord{X: 1, Y: 2}

	p := set.Primary.Tile(c)
	ox := set.OffsetX.Tile(c)
	oy := set.OffsetY.Tile(c)
	oxy := set.OffsetXY.Tile(c)

	// Offset lattices sit exactly half a tile (4 world units) toward
	// positive pixel x / y; pixel y down means world y decreases.
	assert.InDelta(t, p.X+4, ox.X, 1e-12)
	assert.InDelta(t, p.Y, ox.Y, 1e-12)
	assert.InDelta(t, p.X, oy.X, 1e-12)
	assert.InDelta(t, p.Y-4, oy.Y, 1e-12)
	assert.InDelta(t, p.X+4, oxy.X, 1e-12)
	assert.InDelta(t, p.Y-4, oxy.Y, 1e-12)
}

func TestLatticePixelAlignment(t *testing.T) {
	// Every tile of every lattice must map to an exact 8x8 pixel window
	// under the reference transform.
	set := testSet(t)
	tr := geometry.FromOrigin(0, 100, 1, 1)

	for _, lat := range []*Lattice{set.Primary, set.OffsetX, set.OffsetY, set.OffsetXY} {
		for x := 0; x < lat.NX; x++ {
			for y := 0; y < lat.NY; y++ {
				win, ok := tr.PixelWindow(lat.Tile(Coord{X: x, Y: y}))
				require.True(t, ok)
				assert.Equal(t, 8, win.Dx())
				assert.Equal(t, 8, win.Dy())
			}
		}
	}
}

func TestBuildRejectsOddTileSize(t *testing.T) {
	tr := geometry.FromOrigin(0, 100, 1, 1)
	_, err := Build(worldBox(0, 58, 42, 100), tr, 7)
	assert.Error(t, err)
	_, err = Build(worldBox(0, 58, 42, 100), tr, 0)
	assert.Error(t, err)
}

func TestBuildFootprintTooSmall(t *testing.T) {
	tr := geometry.FromOrigin(0, 100, 1, 1)
	_, err := Build(worldBox(0, 91, 9, 100), tr, 8)
	assert.ErrorIs(t, err, ErrInvalidFootprint)
}

func TestCoordAt(t *testing.T) {
	set := testSet(t)

	for _, c := range []Coord{{0, 0}, {2, 3}, {4, 4}} {
		got, ok := set.Primary.CoordAt(set.Primary.Tile(c).Center())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}

	_, ok := set.Primary.CoordAt(geometry.Point2D{X: -100, Y: -100})
	assert.False(t, ok)
}

func TestCoordRange(t *testing.T) {
	set := testSet(t)

	// A rect spanning tiles (1,1) through (2,2).
	a := set.Primary.Tile(Coord{X: 1, Y: 1}).Center()
	b := set.Primary.Tile(Coord{X: 2, Y: 2}).Center()
	lo, hi, ok := set.Primary.CoordRange(geometry.RectFromCorners(a, b))
	require.True(t, ok)
	assert.Equal(t, Coord{X: 1, Y: 1}, lo)
	assert.Equal(t, Coord{X: 2, Y: 2}, hi)

	_, _, ok = set.Primary.CoordRange(geometry.NewRect(-500, -500, 10, 10))
	assert.False(t, ok)
}

func TestWindowClipsToLattice(t *testing.T) {
	set := testSet(t)

	win := set.Primary.Window(Coord{X: 0, Y: 0}, 2)
	assert.Len(t, win, 9)
	for _, c := range win {
		assert.True(t, set.Primary.Contains(c))
	}

	assert.Len(t, set.Primary.Window(Coord{X: 2, Y: 2}, 2), 25)
	assert.Len(t, set.Primary.Window(Coord{X: 2, Y: 2}, 0), 1)
}

func TestOutputGrid(t *testing.T) {
	set := testSet(t)

	w, h := set.OutputSize()
	assert.Equal(t, 40, w)
	assert.Equal(t, 40, h)

	// Pixel (0, 0) of the output grid is the corner of tile (0, 0).
	out := set.OutputTransform()
	first := set.Primary.Tile(Coord{X: 0, Y: 0})
	origin := out.Apply(geometry.Point2D{})
	assert.InDelta(t, first.X, origin.X, 1e-12)
	assert.InDelta(t, first.Y+first.Height, origin.Y, 1e-12)

	// The full output extent covers exactly the primary tiles.
	ext := out.ApplyRect(geometry.NewRect(0, 0, float64(w), float64(h)))
	last := set.Primary.Tile(Coord{X: 4, Y: 4})
	assert.InDelta(t, first.X, ext.X, 1e-12)
	assert.InDelta(t, last.X+last.Width, ext.X+ext.Width, 1e-12)
}
