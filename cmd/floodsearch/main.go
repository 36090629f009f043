// Command floodsearch derives a flood-extent raster from co-registered
// radar imagery by flood-filling a tile grid outward from river corridors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"flood-mapper/internal/classify"
	"flood-mapper/internal/grid"
	"flood-mapper/internal/logger"
	"flood-mapper/internal/postprocess"
	"flood-mapper/internal/raster"
	"flood-mapper/internal/rivers"
	"flood-mapper/internal/search"
	"flood-mapper/internal/seed"
	"flood-mapper/internal/vector"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

func main() {
	imgs := flag.String("imgs", "", "Comma-separated input rasters, oldest first; the last one defines the output grid")
	riversPath := flag.String("rivers", "", "River network shapefile (riv_tc_usu attribute)")
	validityPath := flag.String("validity", "", "Validity footprint shapefile (single polygon)")
	demPath := flag.String("dem", "", "Optional DEM raster for the change-detection model")
	modelURL := flag.String("model", "", "Inference endpoint of the primary model")
	model2URL := flag.String("model2", "", "Optional second endpoint; enables the averaged classifier (requires -dem)")
	outPath := flag.String("out", "floodmap.tif", "Output class raster")
	visitPath := flag.String("visits", "", "Output visited-tile shapefile (default: <out>-visit.shp)")
	paramsPath := flag.String("params", "", "Search parameter JSON file")
	resumePath := flag.String("resume", "", "Visited-tile shapefile of a previous run; bypasses river seeding")
	exportPatches := flag.Bool("export", false, "Also write the radar input patches as rasters")
	flag.Parse()

	log := logger.Setup()
	if err := run(log, *imgs, *riversPath, *validityPath, *demPath, *modelURL, *model2URL,
		*outPath, *visitPath, *paramsPath, *resumePath, *exportPatches); err != nil {
		log.Error("floodsearch failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, imgs, riversPath, validityPath, demPath, modelURL, model2URL,
	outPath, visitPath, paramsPath, resumePath string, exportPatches bool) error {

	params := search.DefaultParams()
	if paramsPath != "" {
		var err error
		if params, err = search.LoadParams(paramsPath); err != nil {
			return err
		}
	}
	if imgs == "" || validityPath == "" || modelURL == "" {
		return fmt.Errorf("-imgs, -validity and -model are required")
	}

	stack, err := raster.OpenStack(strings.Split(imgs, ","))
	if err != nil {
		return err
	}
	defer stack.Close()
	ref := stack.Reference()

	validity, err := loadValidity(validityPath)
	if err != nil {
		return err
	}

	grids, err := grid.Build(validity, ref.Transform, params.TileSize)
	if err != nil {
		return err
	}

	var seeds []grid.Coord
	if resumePath != "" {
		footprints, err := vector.ReadFootprints(resumePath)
		if err != nil {
			return err
		}
		seeds = seed.FromPrescribed(grids.Primary, footprints)
		log.Info("resuming from prescribed tiles", "tiles", len(seeds))
	} else {
		if riversPath == "" {
			return fmt.Errorf("-rivers is required unless resuming")
		}
		net, err := rivers.Load(riversPath, 100)
		if err != nil {
			return err
		}
		seeds = seed.Initial(net, validity, grids.Primary, params.SeedOptions())
		log.Info("seeded from rivers", "segments", net.Len(), "tiles", len(seeds))
	}

	classifier, err := buildClassifier(modelURL, model2URL, demPath)
	if err != nil {
		return err
	}

	w, h := grids.OutputSize()
	out := raster.NewClassRaster(w, h, grids.OutputTransform(), ref.CRS, ref.WKT)
	defer out.Close()

	engine := search.NewEngine(stack, grids, validity, classifier, out, params, log)
	var exports []*raster.ExportRaster
	if exportPatches {
		for _, r := range stack.Rasters {
			exports = append(exports,
				raster.NewExportRaster(w, h, r.Bands(), grids.OutputTransform(), ref.CRS, ref.WKT))
		}
		engine.Export = exports
	}

	res, err := engine.Run(context.Background(), seeds)
	if err != nil {
		return err
	}
	log.Info("search complete",
		"visited", res.Visited, "flooded", res.Flooded,
		"large_water", res.LargeWater, "outside", res.Outside,
		"major_flooding", res.MajorFlooding)

	// Keep the raw map next to the cleaned one.
	if err := out.Save(withSuffix(outPath, "-raw")); err != nil {
		return err
	}
	postprocess.CleanRaster(out, postprocess.DefaultOptions())
	if err := out.Save(outPath); err != nil {
		return err
	}

	for i, ex := range exports {
		if err := ex.Save(withSuffix(outPath, fmt.Sprintf("-img%d", i))); err != nil {
			return err
		}
		ex.Close()
	}

	if visitPath == "" {
		visitPath = withSuffix(strings.TrimSuffix(outPath, filepath.Ext(outPath))+".shp", "-visit")
	}
	return vector.Write(visitPath, res.Records, ref.WKT)
}

// buildClassifier wires the model handles. Two endpoints plus a DEM give
// the averaged dual-model classifier; one endpoint gives the single-model
// classifier.
func buildClassifier(modelURL, model2URL, demPath string) (classify.Classifier, error) {
	primary := classify.NewHTTPModel(modelURL, 0)
	if model2URL == "" {
		return &classify.SingleModel{Model: primary}, nil
	}
	if demPath == "" {
		return nil, fmt.Errorf("-model2 requires -dem")
	}
	dem, err := raster.Open(demPath)
	if err != nil {
		return nil, err
	}
	return &classify.AveragedModel{
		Full:      primary,
		Change:    classify.NewHTTPModel(model2URL, 0),
		Elevation: &classify.RasterDEM{DEM: dem},
	}, nil
}

type footprintRecord struct {
	geom.Polygon
}

// loadValidity reads the first polygon of a shapefile.
func loadValidity(path string) (geom.Polygon, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer d.Close()

	var rec footprintRecord
	if more := d.DecodeRow(&rec); !more {
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return nil, fmt.Errorf("%s contains no polygon", path)
	}
	return rec.Polygon, nil
}

func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
