// Package postprocess cleans the raw class raster produced by the tile
// search: a majority filter smooths per-pixel noise, and small speckle
// regions are merged into their local majority class.
package postprocess

import (
	"image"
	"image/color"

	"flood-mapper/internal/classify"
	"flood-mapper/internal/raster"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Options configures the cleanup pass.
type Options struct {
	// KernelRadius is the radius of the circular majority-filter kernel.
	KernelRadius int
	// SizeThreshold is the contour area (px²) below which a region is
	// replaced by its local majority class.
	SizeThreshold float64
	// Pad widens the replacement window around a small region.
	Pad int
	// NumClasses is the number of class labels, background included.
	NumClasses int
	// Nodata marks never-visited pixels; the filter never reads or
	// writes them.
	Nodata uint8
}

// DefaultOptions returns the standard cleanup configuration.
func DefaultOptions() Options {
	return Options{
		KernelRadius:  2,
		SizeThreshold: 50,
		Pad:           2,
		NumClasses:    classify.NumClasses,
		Nodata:        raster.ClassNodata,
	}
}

// CleanRaster runs Clean on a class raster, replacing its pixel data.
func CleanRaster(c *raster.ClassRaster, opts Options) {
	cleaned := Clean(c.Mat, opts)
	c.Mat.Close()
	c.Mat = cleaned
}

// Clean returns a cleaned copy of the class map. Nodata pixels pass
// through untouched: the filter must never manufacture classified pixels
// outside the visited region.
func Clean(src gocv.Mat, opts Options) gocv.Mat {
	smoothed := majorityFilter(src, opts)

	// Remove small holes and speckle in the non-background classes.
	for cls := 1; cls < opts.NumClasses; cls++ {
		removeSmallRegions(smoothed, uint8(cls), opts)
	}

	// Restore nodata where the input had it.
	rows, cols := src.Rows(), src.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if src.GetUCharAt(y, x) == opts.Nodata {
				smoothed.SetUCharAt(y, x, opts.Nodata)
			}
		}
	}
	return smoothed
}

// majorityFilter applies a circular-kernel majority vote at every visited
// pixel, counting only visited neighbors.
func majorityFilter(src gocv.Mat, opts Options) gocv.Mat {
	rows, cols := src.Rows(), src.Cols()
	out := src.Clone()

	var offsets []image.Point
	r := opts.KernelRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				offsets = append(offsets, image.Point{X: dx, Y: dy})
			}
		}
	}

	counts := make([]int, opts.NumClasses)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if src.GetUCharAt(y, x) == opts.Nodata {
				continue
			}
			for i := range counts {
				counts[i] = 0
			}
			for _, off := range offsets {
				px, py := x+off.X, y+off.Y
				if px < 0 || px >= cols || py < 0 || py >= rows {
					continue
				}
				v := src.GetUCharAt(py, px)
				if int(v) < opts.NumClasses {
					counts[v]++
				}
			}
			best, bestN := int(src.GetUCharAt(y, x)), -1
			for cls, n := range counts {
				if n > bestN {
					best, bestN = cls, n
				}
			}
			out.SetUCharAt(y, x, uint8(best))
		}
	}
	return out
}

// removeSmallRegions traces the boundary contours of one class and merges
// regions below the size threshold into the local majority class. Contours
// touching the image border are skipped: they were clipped by the boundary
// and no reliable replacement can be computed for them.
func removeSmallRegions(m gocv.Mat, cls uint8, opts Options) {
	rows, cols := m.Rows(), m.Cols()

	bin := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	defer bin.Close()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if m.GetUCharAt(y, x) == cls {
				bin.SetUCharAt(y, x, 255)
			} else {
				bin.SetUCharAt(y, x, 0)
			}
		}
	}

	contours := gocv.FindContours(bin, gocv.RetrievalList, gocv.ChainApproxNone)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		pts := pv.ToPoints()
		if len(pts) == 0 || touchesBorder(pts, cols, rows) {
			continue
		}

		if len(pts) <= 2 {
			// Single-pixel speckle: vote over the immediate neighborhood.
			p := pts[0]
			win := padRect(image.Rect(p.X, p.Y, p.X+1, p.Y+1), opts.Pad, cols, rows)
			m.SetUCharAt(p.Y, p.X, majorityIn(m, win, opts))
			continue
		}

		if gocv.ContourArea(pv) >= opts.SizeThreshold {
			continue
		}

		win := padRect(boundsOf(pts), opts.Pad, cols, rows)
		majority := majorityIn(m, win, opts)

		// Rasterize the contour interior within the padded window and
		// overwrite it with the majority class.
		regionMask := gocv.NewMatWithSize(win.Dy(), win.Dx(), gocv.MatTypeCV8U)
		shifted := make([]image.Point, len(pts))
		for j, p := range pts {
			shifted[j] = image.Point{X: p.X - win.Min.X, Y: p.Y - win.Min.Y}
		}
		fillPts := gocv.NewPointsVectorFromPoints([][]image.Point{shifted})
		gocv.FillPoly(&regionMask, fillPts, white)
		fillPts.Close()

		for y := win.Min.Y; y < win.Max.Y; y++ {
			for x := win.Min.X; x < win.Max.X; x++ {
				if regionMask.GetUCharAt(y-win.Min.Y, x-win.Min.X) > 0 {
					m.SetUCharAt(y, x, majority)
				}
			}
		}
		regionMask.Close()
	}
}

// majorityIn returns the most frequent class in the window, ignoring
// nodata. Ties go to the lowest class id.
func majorityIn(m gocv.Mat, win image.Rectangle, opts Options) uint8 {
	counts := make([]int, opts.NumClasses)
	for y := win.Min.Y; y < win.Max.Y; y++ {
		for x := win.Min.X; x < win.Max.X; x++ {
			v := m.GetUCharAt(y, x)
			if int(v) < opts.NumClasses {
				counts[v]++
			}
		}
	}
	best, bestN := 0, -1
	for cls, n := range counts {
		if n > bestN {
			best, bestN = cls, n
		}
	}
	return uint8(best)
}

func touchesBorder(pts []image.Point, cols, rows int) bool {
	for _, p := range pts {
		if p.X == 0 || p.Y == 0 || p.X == cols-1 || p.Y == rows-1 {
			return true
		}
	}
	return false
}

func boundsOf(pts []image.Point) image.Rectangle {
	b := image.Rect(pts[0].X, pts[0].Y, pts[0].X+1, pts[0].Y+1)
	for _, p := range pts[1:] {
		b = b.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	}
	return b
}

func padRect(r image.Rectangle, pad, cols, rows int) image.Rectangle {
	return r.Inset(-pad).Intersect(image.Rect(0, 0, cols, rows))
}
