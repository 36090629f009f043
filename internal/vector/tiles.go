// Package vector persists the visited-tile layer as a shapefile: one
// polygon per visited tile with its class-pixel statistics. The same file
// is the resume input of a later run.
package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flood-mapper/internal/search"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// TileRecord is one shapefile row.
type TileRecord struct {
	geom.Polygon
	Background int
	PermWater  int
	Flood      int
	State      string
}

// Write stores the visit records at path. wkt, when non-empty, is written
// to the companion .prj file.
func Write(path string, records []search.VisitRecord, wkt string) error {
	e, err := shp.NewEncoder(path, TileRecord{})
	if err != nil {
		return fmt.Errorf("vector: create %s: %w", path, err)
	}
	for _, r := range records {
		rec := TileRecord{
			Polygon:    rectPolygon(r.Tile),
			Background: r.Stats.Background,
			PermWater:  r.Stats.PermanentWater,
			Flood:      r.Stats.Flood,
			State:      r.Disposition.String(),
		}
		if err := e.Encode(rec); err != nil {
			e.Close()
			return fmt.Errorf("vector: encode %s: %w", path, err)
		}
	}
	e.Close()

	if wkt != "" {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ReadFootprints loads the tile polygons of a previously written layer,
// the prescribed tiles of a resumed search.
func ReadFootprints(path string) ([]geom.Polygon, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("vector: open %s: %w", path, err)
	}
	defer d.Close()

	var out []geom.Polygon
	for {
		var rec TileRecord
		if more := d.DecodeRow(&rec); !more {
			break
		}
		out = append(out, rec.Polygon)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("vector: decode %s: %w", path, err)
	}
	return out, nil
}

func rectPolygon(r geometry.Rect) geom.Polygon {
	return geom.Polygon{{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}}
}
