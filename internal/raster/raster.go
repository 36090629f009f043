// Package raster provides windowed access to co-registered multi-band
// rasters and the class-map output raster written by the tile search.
//
// Pixel data lives in gocv Mats. Georeferencing (affine transform, CRS,
// nodata) travels in a JSON sidecar next to each image file, in the same
// spirit as the rest of this module's JSON persistence.
package raster

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"

	"flood-mapper/pkg/geometry"

	"github.com/ctessum/sparse"
	"gocv.io/x/gocv"
)

// SidecarSuffix is appended to an image path to locate its georeferencing.
const SidecarSuffix = ".aux.json"

// Sidecar holds the georeferencing of one raster file.
type Sidecar struct {
	// Transform is [a, b, tx, c, d, ty], mapping (col, row) to world.
	Transform [6]float64 `json:"transform"`
	// CRS is an identifier such as "EPSG:4326".
	CRS string `json:"crs"`
	// WKT is the full well-known-text of the CRS, used for .prj outputs.
	WKT    string   `json:"wkt,omitempty"`
	Nodata *float64 `json:"nodata,omitempty"`
}

// Affine returns the sidecar transform as an AffineTransform.
func (s Sidecar) Affine() geometry.AffineTransform {
	return geometry.AffineTransform{
		A: s.Transform[0], B: s.Transform[1], TX: s.Transform[2],
		C: s.Transform[3], D: s.Transform[4], TY: s.Transform[5],
	}
}

// Raster is an open multi-band raster.
type Raster struct {
	Path      string
	Mat       gocv.Mat // CV32F with one channel per band
	Transform geometry.AffineTransform
	CRS       string
	WKT       string
	Nodata    *float64
}

// Open loads an image and its georeferencing sidecar. The pixel data is
// converted to 32-bit float regardless of the on-disk depth.
func Open(path string) (*Raster, error) {
	m := gocv.IMRead(path, gocv.IMReadUnchanged)
	if m.Empty() {
		return nil, fmt.Errorf("raster: cannot read %s", path)
	}
	if m.Type()&gocv.MatTypeCV32F != gocv.MatTypeCV32F {
		conv := gocv.NewMat()
		m.ConvertTo(&conv, gocv.MatTypeCV32F)
		m.Close()
		m = conv
	}

	data, err := os.ReadFile(path + SidecarSuffix)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("raster: sidecar for %s: %w", path, err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		m.Close()
		return nil, fmt.Errorf("raster: sidecar for %s: %w", path, err)
	}

	return &Raster{
		Path:      path,
		Mat:       m,
		Transform: sc.Affine(),
		CRS:       sc.CRS,
		WKT:       sc.WKT,
		Nodata:    sc.Nodata,
	}, nil
}

// Bands returns the number of bands.
func (r *Raster) Bands() int { return r.Mat.Channels() }

// Close releases the pixel data.
func (r *Raster) Close() {
	r.Mat.Close()
}

// ReadWindow reads the pixel window covered by the world-space rectangle
// into a [bands, h, w] array. Pixels outside the raster are filled with NaN
// so that downstream edge heuristics can detect partial tiles.
func (r *Raster) ReadWindow(rect geometry.Rect) (*sparse.DenseArray, error) {
	win, ok := r.Transform.PixelWindow(rect)
	if !ok {
		return nil, fmt.Errorf("raster: %s has a singular transform", r.Path)
	}
	bands := r.Bands()
	h, w := win.Dy(), win.Dx()
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("raster: empty window %v for %s", win, r.Path)
	}

	out := sparse.ZerosDense(bands, h, w)
	rows, cols := r.Mat.Rows(), r.Mat.Cols()
	for y := 0; y < h; y++ {
		ry := win.Min.Y + y
		for x := 0; x < w; x++ {
			rx := win.Min.X + x
			if ry < 0 || ry >= rows || rx < 0 || rx >= cols {
				for b := 0; b < bands; b++ {
					out.Elements[(b*h+y)*w+x] = math.NaN()
				}
				continue
			}
			if bands == 1 {
				out.Elements[y*w+x] = float64(r.Mat.GetFloatAt(ry, rx))
				continue
			}
			v := r.Mat.GetVecfAt(ry, rx)
			for b := 0; b < bands; b++ {
				out.Elements[(b*h+y)*w+x] = float64(v[b])
			}
		}
	}
	return out, nil
}

// Stack is an ordered list of co-registered rasters. The last raster is the
// reference whose transform defines the output pixel grid.
type Stack struct {
	Rasters []*Raster
}

// OpenStack opens every path in order and verifies co-registration.
// A resolution or CRS mismatch is fatal before any tile is visited.
func OpenStack(paths []string) (*Stack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("raster: no input rasters")
	}
	s := &Stack{}
	for _, p := range paths {
		r, err := Open(p)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Rasters = append(s.Rasters, r)
	}
	if err := s.checkMatch(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Reference returns the raster whose grid the outputs align to.
func (s *Stack) Reference() *Raster {
	return s.Rasters[len(s.Rasters)-1]
}

// Close releases all rasters.
func (s *Stack) Close() {
	for _, r := range s.Rasters {
		r.Close()
	}
}

// checkMatch verifies that all rasters share resolution and CRS.
func (s *Stack) checkMatch() error {
	ref := s.Rasters[0]
	rx, ry := ref.Transform.Resolution()
	for _, r := range s.Rasters[1:] {
		x, y := r.Transform.Resolution()
		if math.Abs(x-rx) > 1e-9 || math.Abs(y-ry) > 1e-9 {
			return fmt.Errorf("raster: resolution mismatch: %s is (%g, %g), %s is (%g, %g)",
				ref.Path, rx, ry, r.Path, x, y)
		}
		if r.CRS != ref.CRS {
			return fmt.Errorf("raster: CRS mismatch: %s is %s, %s is %s",
				ref.Path, ref.CRS, r.Path, r.CRS)
		}
	}
	return nil
}

// windowInside clips win to a mat of the given size, returning false when
// nothing remains.
func windowInside(win image.Rectangle, rows, cols int) (image.Rectangle, bool) {
	win = win.Intersect(image.Rect(0, 0, cols, rows))
	return win, !win.Empty()
}
