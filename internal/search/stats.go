package search

import (
	"flood-mapper/internal/classify"
	"flood-mapper/internal/grid"
	"flood-mapper/pkg/geometry"
)

// Disposition records how a visited tile was classified by the search.
type Disposition int

const (
	// DispositionOutside covers tiles outside the validity footprint,
	// oracle refusals and edge-heuristic rejections alike.
	DispositionOutside Disposition = iota
	// DispositionLargeWater marks tiles dominated by permanent water;
	// the search does not expand from them.
	DispositionLargeWater
	// DispositionFlooded marks tiles whose flood fraction exceeded the
	// threshold; the search expands around them.
	DispositionFlooded
	// DispositionDry marks classified tiles with no significant flood.
	DispositionDry
)

func (d Disposition) String() string {
	switch d {
	case DispositionLargeWater:
		return "large_water"
	case DispositionFlooded:
		return "flooded"
	case DispositionDry:
		return "dry"
	default:
		return "outside"
	}
}

// TileStats holds the per-class pixel counts of one tile.
type TileStats struct {
	Background     int `json:"background"`
	PermanentWater int `json:"permanent_water"`
	Flood          int `json:"flood"`
}

// StatsFromClasses counts class pixels in a row-major class patch.
func StatsFromClasses(cls []uint8) TileStats {
	var s TileStats
	for _, c := range cls {
		switch c {
		case classify.ClassBackground:
			s.Background++
		case classify.ClassPermanentWater:
			s.PermanentWater++
		case classify.ClassFlood:
			s.Flood++
		}
	}
	return s
}

// Total returns the number of counted pixels.
func (s TileStats) Total() int {
	return s.Background + s.PermanentWater + s.Flood
}

// FloodFraction returns the flooded share of counted pixels.
func (s TileStats) FloodFraction() float64 {
	t := s.Total()
	if t == 0 {
		return 0
	}
	return float64(s.Flood) / float64(t)
}

// VisitRecord is one entry per tile ever popped from the frontier.
type VisitRecord struct {
	Coord       grid.Coord
	Tile        geometry.Rect
	Stats       TileStats
	Disposition Disposition
}

// Result summarizes a completed search run.
type Result struct {
	Records []VisitRecord

	Visited    int
	Flooded    int
	LargeWater int
	Outside    int

	// MajorFlooding is set when the flooded tile count reaches the
	// configured threshold, the signal that this image combination shows
	// a real event.
	MajorFlooding bool
}
