package raster

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"flood-mapper/pkg/geometry"

	"github.com/ctessum/sparse"
	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"
)

// ClassNodata marks pixels never written by any visited tile.
const ClassNodata uint8 = 255

// ClassRaster is the single-band 8-bit class map output of the tile search.
// Its pixel grid equals the pixel-aligned footprint computed by the grid
// builder.
type ClassRaster struct {
	Mat       gocv.Mat // CV8U
	Transform geometry.AffineTransform
	CRS       string
	WKT       string
}

// NewClassRaster allocates a class raster of the given pixel size filled
// with the nodata value.
func NewClassRaster(width, height int, tr geometry.AffineTransform, crs, wkt string) *ClassRaster {
	m := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(ClassNodata), 0, 0, 0), height, width, gocv.MatTypeCV8U)
	return &ClassRaster{Mat: m, Transform: tr, CRS: crs, WKT: wkt}
}

// Close releases the pixel data.
func (c *ClassRaster) Close() { c.Mat.Close() }

// Width returns the raster width in pixels.
func (c *ClassRaster) Width() int { return c.Mat.Cols() }

// Height returns the raster height in pixels.
func (c *ClassRaster) Height() int { return c.Mat.Rows() }

// At returns the class at pixel (x, y).
func (c *ClassRaster) At(x, y int) uint8 {
	return c.Mat.GetUCharAt(y, x)
}

// WriteWindow writes a [h, w] class patch at the pixel window implied by
// the world-space rectangle. Tile windows from the search never overlap,
// but the caller must not issue concurrent writes.
func (c *ClassRaster) WriteWindow(rect geometry.Rect, classes []uint8, h, w int) error {
	win, ok := c.Transform.PixelWindow(rect)
	if !ok {
		return fmt.Errorf("raster: class raster has a singular transform")
	}
	if win.Dx() != w || win.Dy() != h {
		return fmt.Errorf("raster: window %dx%d does not match patch %dx%d",
			win.Dx(), win.Dy(), w, h)
	}
	clipped, any := windowInside(win, c.Mat.Rows(), c.Mat.Cols())
	if !any {
		return fmt.Errorf("raster: window %v outside class raster", win)
	}
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		for x := clipped.Min.X; x < clipped.Max.X; x++ {
			c.Mat.SetUCharAt(y, x, classes[(y-win.Min.Y)*w+(x-win.Min.X)])
		}
	}
	return nil
}

// Save writes the class map as a deflate-compressed TIFF plus a world file,
// a .prj and a georeferencing sidecar.
func (c *ClassRaster) Save(path string) error {
	h, w := c.Mat.Rows(), c.Mat.Cols()
	img := image.NewGray(image.Rect(0, 0, w, h))
	data := c.Mat.ToBytes()
	copy(img.Pix, data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	if err := tiff.Encode(f, img, opts); err != nil {
		return fmt.Errorf("raster: encode %s: %w", path, err)
	}
	return writeGeoFiles(path, c.Transform, c.CRS, c.WKT, float64(ClassNodata))
}

// ExportRaster mirrors the class raster's grid and collects the radar
// patches that the classifier read for each visited tile, so a later run
// can reuse them without re-windowing the source imagery.
type ExportRaster struct {
	bands     []gocv.Mat // one CV32F mat per band
	Transform geometry.AffineTransform
	CRS       string
	WKT       string
}

// NewExportRaster allocates a float export raster with the given band count.
func NewExportRaster(width, height, bands int, tr geometry.AffineTransform, crs, wkt string) *ExportRaster {
	e := &ExportRaster{Transform: tr, CRS: crs, WKT: wkt}
	for b := 0; b < bands; b++ {
		e.bands = append(e.bands, gocv.NewMatWithSize(height, width, gocv.MatTypeCV32F))
	}
	return e
}

// Close releases the pixel data.
func (e *ExportRaster) Close() {
	for i := range e.bands {
		e.bands[i].Close()
	}
}

// WriteWindow writes a [bands, h, w] patch at the window implied by the
// world-space rectangle. Same non-overlap and serialization contract as
// ClassRaster.WriteWindow.
func (e *ExportRaster) WriteWindow(rect geometry.Rect, patch *sparse.DenseArray) error {
	if len(patch.Shape) != 3 || patch.Shape[0] != len(e.bands) {
		return fmt.Errorf("raster: patch shape %v does not match %d bands",
			patch.Shape, len(e.bands))
	}
	win, ok := e.Transform.PixelWindow(rect)
	if !ok {
		return fmt.Errorf("raster: export raster has a singular transform")
	}
	h, w := patch.Shape[1], patch.Shape[2]
	if win.Dx() != w || win.Dy() != h {
		return fmt.Errorf("raster: window %dx%d does not match patch %dx%d",
			win.Dx(), win.Dy(), w, h)
	}
	rows, cols := e.bands[0].Rows(), e.bands[0].Cols()
	clipped, any := windowInside(win, rows, cols)
	if !any {
		return fmt.Errorf("raster: window %v outside export raster", win)
	}
	for b := range e.bands {
		for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
			for x := clipped.Min.X; x < clipped.Max.X; x++ {
				v := patch.Elements[(b*h+(y-win.Min.Y))*w+(x-win.Min.X)]
				e.bands[b].SetFloatAt(y, x, float32(v))
			}
		}
	}
	return nil
}

// Save merges the bands and writes a float TIFF plus georeferencing files.
func (e *ExportRaster) Save(path string) error {
	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(e.bands, &merged)
	if ok := gocv.IMWrite(path, merged); !ok {
		return fmt.Errorf("raster: cannot write %s", path)
	}
	return writeGeoFiles(path, e.Transform, e.CRS, e.WKT, 0)
}

// writeGeoFiles writes the world file, .prj and JSON sidecar for an output
// raster at path.
func writeGeoFiles(path string, tr geometry.AffineTransform, crs, wkt string, nodata float64) error {
	// World file coordinates reference the center of the top-left pixel.
	world := fmt.Sprintf("%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n",
		tr.A, tr.C, tr.B, tr.D, tr.TX+tr.A/2, tr.TY+tr.D/2)
	if err := os.WriteFile(worldFilePath(path), []byte(world), 0o644); err != nil {
		return err
	}
	if wkt != "" {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return err
		}
	}
	sc := Sidecar{
		Transform: [6]float64{tr.A, tr.B, tr.TX, tr.C, tr.D, tr.TY},
		CRS:       crs,
		WKT:       wkt,
		Nodata:    &nodata,
	}
	return writeSidecar(path+SidecarSuffix, sc)
}

// worldFilePath derives the world-file name: first and last letters of the
// extension plus "w" (.tif -> .tfw).
func worldFilePath(path string) string {
	ext := filepath.Ext(path)
	if len(ext) == 4 {
		return strings.TrimSuffix(path, ext) + "." + ext[1:2] + ext[3:4] + "w"
	}
	return path + ".wld"
}

func writeSidecar(path string, sc Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
