package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"flood-mapper/internal/raster"
	"flood-mapper/pkg/geometry"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// memRaster builds an in-memory single-band raster filled with a constant.
func memRaster(t *testing.T, rows, cols int, fill float32) *raster.Raster {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(fill), 0, 0, 0),
		rows, cols, gocv.MatTypeCV32F)
	r := &raster.Raster{
		Path:      "mem",
		Mat:       m,
		Transform: geometry.FromOrigin(0, float64(rows), 1, 1),
		CRS:       "EPSG:32633",
	}
	t.Cleanup(r.Close)
	return r
}

func memStack(t *testing.T, n int) *raster.Stack {
	s := &raster.Stack{}
	for i := 0; i < n; i++ {
		s.Rasters = append(s.Rasters, memRaster(t, 10, 10, float32(i+1)))
	}
	return s
}

type constHandle struct {
	value float64
	// lastPatches records what the handle saw, for call-shape assertions.
	lastPatches   []*sparse.DenseArray
	lastElevation *sparse.DenseArray
}

func (h *constHandle) Infer(_ context.Context, patches []*sparse.DenseArray, elevation *sparse.DenseArray) (*sparse.DenseArray, error) {
	h.lastPatches = patches
	h.lastElevation = elevation
	hh := patches[0].Shape[1]
	ww := patches[0].Shape[2]
	out := sparse.ZerosDense(NumClasses, hh, ww)
	for i := range out.Elements {
		out.Elements[i] = h.value
	}
	return out, nil
}

type constElevation struct {
	err error
}

func (e *constElevation) Patch(_ context.Context, _ geometry.Rect, h, w int) (*sparse.DenseArray, error) {
	if e.err != nil {
		return nil, e.err
	}
	return sparse.ZerosDense(1, h, w), nil
}

func tileRect() geometry.Rect {
	// World rect mapping to a 4x4 pixel window of the 10x10 test rasters.
	return geometry.NewRect(2, 4, 4, 4)
}

func TestSingleModelClassify(t *testing.T) {
	stack := memStack(t, 3)
	model := &constHandle{value: 0.5}
	cls, err := (&SingleModel{Model: model}).Classify(context.Background(), stack, tileRect())
	require.NoError(t, err)

	require.Len(t, cls.Patches, 3)
	assert.Equal(t, []int{1, 4, 4}, cls.Patches[0].Shape)
	assert.Equal(t, 2.0, cls.Patches[1].Elements[0])
	require.NotNil(t, cls.Logits)
	assert.Equal(t, []int{NumClasses, 4, 4}, cls.Logits.Shape)
	assert.Len(t, model.lastPatches, 3)
	assert.Nil(t, model.lastElevation)
}

func TestAveragedModelAveragesLogits(t *testing.T) {
	stack := memStack(t, 3)
	full := &constHandle{value: 1}
	change := &constHandle{value: 3}
	m := &AveragedModel{Full: full, Change: change, Elevation: &constElevation{}}

	cls, err := m.Classify(context.Background(), stack, tileRect())
	require.NoError(t, err)
	require.NotNil(t, cls.Logits)
	for _, v := range cls.Logits.Elements {
		assert.Equal(t, 2.0, v)
	}

	// The change model sees only the newest two patches plus the DEM.
	assert.Len(t, full.lastPatches, 3)
	assert.Nil(t, full.lastElevation)
	assert.Len(t, change.lastPatches, 2)
	require.NotNil(t, change.lastElevation)
	assert.Equal(t, []int{1, 4, 4}, change.lastElevation.Shape)
}

func TestAveragedModelUnavailableElevation(t *testing.T) {
	stack := memStack(t, 2)
	full := &constHandle{value: 1}
	m := &AveragedModel{Full: full, Change: &constHandle{value: 3}, Elevation: &constElevation{err: ErrUnavailable}}

	cls, err := m.Classify(context.Background(), stack, tileRect())
	require.NoError(t, err)
	assert.Nil(t, cls.Logits)
	assert.Len(t, cls.Patches, 2)
	// Neither model was asked.
	assert.Nil(t, full.lastPatches)
}

func TestMeanLogitsShapeMismatch(t *testing.T) {
	_, err := meanLogits(sparse.ZerosDense(3, 4, 4), sparse.ZerosDense(3, 2, 2))
	assert.Error(t, err)
}

func TestHTTPModelInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"logits": {"shape": [3, 2, 2], "data": [0,0,0,0, 1,1,1,1, 2,2,2,2]}}`))
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, 0)
	got, err := m.Infer(context.Background(), []*sparse.DenseArray{sparse.ZerosDense(1, 2, 2)}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int{3, 2, 2}, got.Shape)
	assert.Equal(t, 2.0, got.Elements[8])
}

func TestHTTPModelNilLogits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, 0)
	got, err := m.Infer(context.Background(), []*sparse.DenseArray{sparse.ZerosDense(1, 2, 2)}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHTTPModelErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, 0)
	_, err := m.Infer(context.Background(), []*sparse.DenseArray{sparse.ZerosDense(1, 2, 2)}, nil)
	assert.Error(t, err)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logits": {"shape": [3, 2, 2], "data": [1]}}`))
	}))
	defer bad.Close()

	m = NewHTTPModel(bad.URL, 0)
	_, err = m.Infer(context.Background(), []*sparse.DenseArray{sparse.ZerosDense(1, 2, 2)}, nil)
	assert.Error(t, err)
}

func TestRasterDEMPatch(t *testing.T) {
	dem := memRaster(t, 10, 10, 42)
	src := &RasterDEM{DEM: dem}

	p, err := src.Patch(context.Background(), tileRect(), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 4}, p.Shape)
	for _, v := range p.Elements {
		assert.InDelta(t, 42, v, 1e-6)
	}

	// A tile outside the DEM extent is unavailable, not zero-filled.
	far := geometry.NewRect(500, 500, 4, 4)
	_, err = src.Patch(context.Background(), far, 4, 4)
	assert.ErrorIs(t, err, ErrUnavailable)
}
