// Package classify defines the classification oracle contract used by the
// tile search, and the concrete classifier variants built on explicit
// model handles.
//
// The search treats the oracle as a black box: it passes the open input
// rasters and a tile footprint, and receives raw per-class logits or nil.
// Nil logits mean "tile unusable" (missing auxiliary data, tile at a data
// edge) and are an expected outcome, not an error.
package classify

import (
	"context"
	"errors"
	"fmt"

	"flood-mapper/internal/raster"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Class labels of the per-pixel class map.
const (
	ClassBackground     uint8 = 0
	ClassPermanentWater uint8 = 1
	ClassFlood          uint8 = 2

	NumClasses = 3
)

// ErrUnavailable signals that an auxiliary data source cannot serve the
// requested tile. Classifiers translate it into nil logits.
var ErrUnavailable = errors.New("classify: auxiliary data unavailable")

// Classification is the oracle output for one tile.
type Classification struct {
	// Patches holds the raw image windows read from each input raster,
	// shaped [bands, h, w]. They feed the edge-validity heuristic and the
	// optional patch export.
	Patches []*sparse.DenseArray
	// Elevation is the auxiliary DEM patch, if the classifier used one.
	Elevation *sparse.DenseArray
	// Logits are the per-class scores shaped [classes, h, w], or nil when
	// the tile is unusable.
	Logits *sparse.DenseArray
}

// Classifier turns a tile footprint into a classification.
type Classifier interface {
	Classify(ctx context.Context, stack *raster.Stack, tile geometry.Rect) (*Classification, error)
}

// ModelHandle is an inference-capable handle to one loaded model. Handles
// are constructed once by the caller and passed in explicitly; there is no
// process-wide model state.
type ModelHandle interface {
	Infer(ctx context.Context, patches []*sparse.DenseArray, elevation *sparse.DenseArray) (*sparse.DenseArray, error)
}

// ElevationSource supplies DEM patches resampled to a tile's pixel shape.
type ElevationSource interface {
	Patch(ctx context.Context, tile geometry.Rect, h, w int) (*sparse.DenseArray, error)
}

// SingleModel classifies each tile with one model over all input rasters.
type SingleModel struct {
	Model ModelHandle
}

// Classify implements Classifier.
func (c *SingleModel) Classify(ctx context.Context, stack *raster.Stack, tile geometry.Rect) (*Classification, error) {
	patches, err := readPatches(stack, tile)
	if err != nil {
		return nil, err
	}
	logits, err := c.Model.Infer(ctx, patches, nil)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &Classification{Patches: patches, Logits: logits}, nil
}

// AveragedModel classifies with two models and averages their logits. The
// second model sees only the last two image patches plus the elevation
// patch, matching a change-detection architecture; the first sees the full
// stack. A tile whose elevation cannot be fetched is reported unusable.
type AveragedModel struct {
	Full      ModelHandle
	Change    ModelHandle
	Elevation ElevationSource
}

// Classify implements Classifier.
func (c *AveragedModel) Classify(ctx context.Context, stack *raster.Stack, tile geometry.Rect) (*Classification, error) {
	patches, err := readPatches(stack, tile)
	if err != nil {
		return nil, err
	}
	h := patches[0].Shape[1]
	w := patches[0].Shape[2]

	dem, err := c.Elevation.Patch(ctx, tile, h, w)
	if errors.Is(err, ErrUnavailable) {
		return &Classification{Patches: patches}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("classify: elevation: %w", err)
	}

	full, err := c.Full.Infer(ctx, patches, nil)
	if err != nil {
		return nil, fmt.Errorf("classify: full model: %w", err)
	}
	change, err := c.Change.Infer(ctx, patches[len(patches)-2:], dem)
	if err != nil {
		return nil, fmt.Errorf("classify: change model: %w", err)
	}
	if full == nil || change == nil {
		return &Classification{Patches: patches, Elevation: dem}, nil
	}

	avg, err := meanLogits(full, change)
	if err != nil {
		return nil, err
	}
	return &Classification{Patches: patches, Elevation: dem, Logits: avg}, nil
}

// readPatches reads the tile window from every raster in the stack.
func readPatches(stack *raster.Stack, tile geometry.Rect) ([]*sparse.DenseArray, error) {
	patches := make([]*sparse.DenseArray, 0, len(stack.Rasters))
	for _, r := range stack.Rasters {
		p, err := r.ReadWindow(tile)
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// meanLogits averages two equally shaped logit arrays.
func meanLogits(a, b *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(a.Elements) != len(b.Elements) {
		return nil, fmt.Errorf("classify: logit shapes %v and %v differ", a.Shape, b.Shape)
	}
	out := sparse.ZerosDense(a.Shape...)
	floats.AddTo(out.Elements, a.Elements, b.Elements)
	floats.Scale(0.5, out.Elements)
	return out, nil
}
