package classify

import (
	"context"
	"math"

	"flood-mapper/internal/raster"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/sparse"
)

// RasterDEM serves elevation patches from a coarser DEM raster, bilinearly
// resampled to the requested tile shape. The DEM does not need to share the
// reference pixel grid, only the CRS.
type RasterDEM struct {
	DEM *raster.Raster
}

// Patch implements ElevationSource. Tiles that fall even partially outside
// the DEM's extent are reported unavailable.
func (d *RasterDEM) Patch(_ context.Context, tile geometry.Rect, h, w int) (*sparse.DenseArray, error) {
	inv, ok := d.DEM.Transform.Inverse()
	if !ok {
		return nil, ErrUnavailable
	}
	rows, cols := d.DEM.Mat.Rows(), d.DEM.Mat.Cols()

	out := sparse.ZerosDense(1, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Sample at the pixel center of the target grid.
			wx := tile.X + (float64(x)+0.5)/float64(w)*tile.Width
			wy := tile.Y + tile.Height - (float64(y)+0.5)/float64(h)*tile.Height
			p := inv.Apply(geometry.Point2D{X: wx, Y: wy})
			v, okSample := bilinear(d.DEM, p.X-0.5, p.Y-0.5, rows, cols)
			if !okSample {
				return nil, ErrUnavailable
			}
			out.Elements[y*w+x] = v
		}
	}
	return out, nil
}

// bilinear samples band 0 of the raster at fractional pixel coordinates.
func bilinear(r *raster.Raster, fx, fy float64, rows, cols int) (float64, bool) {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	if x0 < 0 || y0 < 0 || x0+1 >= cols || y0+1 >= rows {
		return 0, false
	}
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	at := func(y, x int) float64 {
		if r.Bands() == 1 {
			return float64(r.Mat.GetFloatAt(y, x))
		}
		return float64(r.Mat.GetVecfAt(y, x)[0])
	}
	v00 := at(y0, x0)
	v01 := at(y0, x0+1)
	v10 := at(y0+1, x0)
	v11 := at(y0+1, x0+1)
	top := v00*(1-tx) + v01*tx
	bot := v10*(1-tx) + v11*tx
	return top*(1-ty) + bot*ty, true
}
