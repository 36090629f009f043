package vector

import (
	"path/filepath"
	"testing"

	"flood-mapper/internal/grid"
	"flood-mapper/internal/search"
	"flood-mapper/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "visits.shp")

	records := []search.VisitRecord{
		{
			Coord:       grid.Coord{X: 0, Y: 0},
			Tile:        geometry.NewRect(100, 200, 80, 80),
			Stats:       search.TileStats{Background: 10, PermanentWater: 2, Flood: 4},
			Disposition: search.DispositionFlooded,
		},
		{
			Coord:       grid.Coord{X: 1, Y: 0},
			Tile:        geometry.NewRect(180, 200, 80, 80),
			Disposition: search.DispositionOutside,
		},
	}
	require.NoError(t, Write(path, records, "PROJCS[\"test\"]"))
	assert.FileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, "visits.prj"))

	footprints, err := ReadFootprints(path)
	require.NoError(t, err)
	require.Len(t, footprints, 2)

	b := footprints[0].Bounds()
	assert.InDelta(t, 100, b.Min.X, 1e-6)
	assert.InDelta(t, 200, b.Min.Y, 1e-6)
	assert.InDelta(t, 180, b.Max.X, 1e-6)
	assert.InDelta(t, 280, b.Max.Y, 1e-6)
}

func TestRectPolygonClosed(t *testing.T) {
	p := rectPolygon(geometry.NewRect(0, 0, 10, 20))
	require.Len(t, p, 1)
	assert.Len(t, p[0], 4)
	assert.InDelta(t, 200, p.Area(), 1e-9)
}
