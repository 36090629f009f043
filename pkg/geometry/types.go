// Package geometry provides the affine transform and rectangle types used to
// move between world (CRS) coordinates and raster pixel coordinates.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Rect represents an axis-aligned rectangle with floating-point coordinates.
// X, Y is the minimum corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// RectFromCorners creates the rectangle spanning two arbitrary corners.
func RectFromCorners(a, b Point2D) Rect {
	xlo, xhi := math.Min(a.X, b.X), math.Max(a.X, b.X)
	ylo, yhi := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: xlo, Y: ylo, Width: xhi - xlo, Height: yhi - ylo}
}

// Contains returns true if the point is inside the rectangle (inclusive).
func (r Rect) Contains(p Point2D) bool {
	return p.X >= r.X && p.X <= r.X+r.Width &&
		p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// ContainsRect returns true if other lies fully inside r (inclusive).
func (r Rect) ContainsRect(other Rect) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

// Intersects returns true if this rectangle intersects with another.
func (r Rect) Intersects(other Rect) bool {
	return r.X < other.X+other.Width && r.X+r.Width > other.X &&
		r.Y < other.Y+other.Height && r.Y+r.Height > other.Y
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Corners returns the four corners in counter-clockwise order starting at
// the minimum corner.
func (r Rect) Corners() [4]Point2D {
	return [4]Point2D{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}

// AffineTransform represents a 2x3 affine transformation matrix mapping
// pixel coordinates (col, row) to world coordinates.
// [a b tx]
// [c d ty]
// For a north-up raster, B and C are zero, A is the pixel width and D is the
// (negative) pixel height.
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// FromOrigin returns the north-up transform for a raster whose top-left
// corner is at (west, north) with the given pixel sizes. ySize is expected
// positive; rows grow southward.
func FromOrigin(west, north, xSize, ySize float64) AffineTransform {
	return AffineTransform{A: xSize, TX: west, D: -ySize, TY: north}
}

// Apply maps a pixel-space point to world coordinates.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// ApplyRect maps a pixel-space rectangle to world coordinates, normalizing
// the corner order (a negative D flips the y axis).
func (t AffineTransform) ApplyRect(r Rect) Rect {
	a := t.Apply(Point2D{X: r.X, Y: r.Y})
	b := t.Apply(Point2D{X: r.X + r.Width, Y: r.Y + r.Height})
	return RectFromCorners(a, b)
}

// Compose returns this transform composed with another (this * other).
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-12 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// Resolution returns the absolute pixel sizes in world units.
func (t AffineTransform) Resolution() (xSize, ySize float64) {
	return math.Abs(t.A), math.Abs(t.D)
}

// PixelWindow maps a world-space rectangle to the integer pixel window it
// covers under this transform. The window is rounded to the nearest pixel,
// so rectangles that lie on exact pixel boundaries (such as tile footprints
// from a pixel-snapped lattice) map with zero resampling error.
func (t AffineTransform) PixelWindow(r Rect) (image.Rectangle, bool) {
	inv, ok := t.Inverse()
	if !ok {
		return image.Rectangle{}, false
	}
	a := inv.Apply(Point2D{X: r.X, Y: r.Y})
	b := inv.Apply(Point2D{X: r.X + r.Width, Y: r.Y + r.Height})
	x0 := int(math.Round(math.Min(a.X, b.X)))
	x1 := int(math.Round(math.Max(a.X, b.X)))
	y0 := int(math.Round(math.Min(a.Y, b.Y)))
	y1 := int(math.Round(math.Max(a.Y, b.Y)))
	return image.Rect(x0, y0, x1, y1), true
}
