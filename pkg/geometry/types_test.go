package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineRoundTrip(t *testing.T) {
	tr := FromOrigin(10, 50, 2, 2)

	world := tr.Apply(Point2D{X: 3, Y: 4})
	assert.Equal(t, Point2D{X: 16, Y: 42}, world)

	inv, ok := tr.Inverse()
	require.True(t, ok)
	back := inv.Apply(world)
	assert.InDelta(t, 3, back.X, 1e-12)
	assert.InDelta(t, 4, back.Y, 1e-12)
}

func TestInverseSingular(t *testing.T) {
	_, ok := AffineTransform{}.Inverse()
	assert.False(t, ok)
}

func TestApplyRectNormalizesCorners(t *testing.T) {
	// Negative pixel height flips the y axis; the resulting rect must still
	// have its minimum corner at X, Y.
	tr := FromOrigin(10, 50, 2, 2)
	r := tr.ApplyRect(NewRect(0, 0, 4, 4))

	assert.Equal(t, NewRect(10, 42, 8, 8), r)
}

func TestPixelWindowExact(t *testing.T) {
	tr := FromOrigin(10, 50, 2, 2)

	win, ok := tr.PixelWindow(NewRect(12, 42, 4, 4))
	require.True(t, ok)
	assert.Equal(t, image.Rect(1, 2, 3, 4), win)

	_, ok = AffineTransform{}.PixelWindow(NewRect(0, 0, 1, 1))
	assert.False(t, ok)
}

func TestPixelWindowRoundTrip(t *testing.T) {
	// A pixel rect pushed through the transform must come back as the same
	// pixel window, whatever the pixel size.
	for _, px := range []float64{0.5, 1, 2.5, 10} {
		tr := FromOrigin(-3, 7, px, px)
		world := tr.ApplyRect(NewRect(5, 9, 8, 8))
		win, ok := tr.PixelWindow(world)
		require.True(t, ok)
		assert.Equal(t, image.Rect(5, 9, 13, 17), win, "pixel size %g", px)
	}
}

func TestRectFromCorners(t *testing.T) {
	r := RectFromCorners(Point2D{X: 5, Y: 1}, Point2D{X: 1, Y: 9})
	assert.Equal(t, NewRect(1, 1, 4, 8), r)
}

func TestRectContainsRect(t *testing.T) {
	outer := NewRect(0, 0, 10, 10)
	assert.True(t, outer.ContainsRect(NewRect(2, 2, 4, 4)))
	assert.True(t, outer.ContainsRect(outer))
	assert.False(t, outer.ContainsRect(NewRect(8, 8, 4, 4)))
	assert.False(t, outer.ContainsRect(NewRect(-1, 2, 4, 4)))
}

func TestRectIntersects(t *testing.T) {
	r := NewRect(0, 0, 4, 4)
	assert.True(t, r.Intersects(NewRect(2, 2, 4, 4)))
	assert.False(t, r.Intersects(NewRect(5, 5, 2, 2)))
	// Edge contact is not an intersection.
	assert.False(t, r.Intersects(NewRect(4, 0, 2, 2)))
}

func TestCompose(t *testing.T) {
	a := FromOrigin(100, 200, 1, 1)
	shift := AffineTransform{A: 1, D: 1, TX: 5, TY: 7}
	c := a.Compose(shift)

	p := Point2D{X: 2, Y: 3}
	assert.Equal(t, a.Apply(shift.Apply(p)), c.Apply(p))
}
