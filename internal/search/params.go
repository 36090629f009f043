package search

import (
	"encoding/json"
	"os"

	"flood-mapper/internal/seed"
)

// Params are the tunable thresholds of the search. The defaults mirror the
// values the flood-map products were generated with; none of them carries a
// principled derivation, so they are configuration rather than behavior.
type Params struct {
	// TileSize is the tile edge length in pixels. Must be even.
	TileSize int `json:"tile_size"`
	// MaxTiles caps the number of visited tiles. Degenerate inputs (a
	// basin with no flood) would otherwise force visiting every tile in a
	// very large footprint.
	MaxTiles int `json:"max_tiles"`

	// FloodThreshold is the flood pixel fraction above which a tile is
	// considered flooded and the frontier expands around it.
	FloodThreshold float64 `json:"flood_threshold"`
	// LargeWaterPW and LargeWaterBG detect tiles dominated by permanent
	// water: more than LargeWaterPW permanent-water pixels, or fewer than
	// LargeWaterBG background pixels. Such tiles never expand, keeping
	// the search out of oceans and large lakes.
	LargeWaterPW float64 `json:"large_water_pw"`
	LargeWaterBG float64 `json:"large_water_bg"`

	// EdgeZeroFraction is the near-zero pixel fraction above which an
	// input patch is assumed to straddle the source image edge.
	EdgeZeroFraction float64 `json:"edge_zero_fraction"`

	// ExpandRadius is the half-width of the window enqueued around a
	// flooded tile. Wide re-expansion trades redundant visits for
	// robustness against a single bad tile blocking propagation.
	ExpandRadius int `json:"expand_radius"`

	// Seeding.
	MinRiverSize float64 `json:"min_river_size"`
	MaxSeedTiles int     `json:"max_seed_tiles"`
	SeedMargin   int     `json:"seed_margin"`

	// MajorFloodTiles is the flooded-tile count at which a run is flagged
	// as showing major flooding.
	MajorFloodTiles int `json:"major_flood_tiles"`

	// Workers bounds the parallel offset-lattice classifications within
	// one tile visit.
	Workers int `json:"workers"`

	// LogFrequency emits progress counters every n visits; 0 disables.
	LogFrequency int `json:"log_frequency"`
}

// DefaultParams returns the standard search configuration.
func DefaultParams() Params {
	return Params{
		TileSize:         224,
		MaxTiles:         2500,
		FloodThreshold:   0.05,
		LargeWaterPW:     0.5,
		LargeWaterBG:     0.1,
		EdgeZeroFraction: 0.05,
		ExpandRadius:     3,
		MinRiverSize:     500,
		MaxSeedTiles:     200,
		SeedMargin:       2,
		MajorFloodTiles:  50,
		Workers:          4,
		LogFrequency:     200,
	}
}

// SeedOptions derives the seeding configuration.
func (p Params) SeedOptions() seed.Options {
	return seed.Options{
		MinRiverSize: p.MinRiverSize,
		MaxTiles:     p.MaxSeedTiles,
		Margin:       p.SeedMargin,
	}
}

// LoadParams reads parameters from a JSON file, filling unset fields with
// defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

// Save writes the parameters to a JSON file.
func (p Params) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
