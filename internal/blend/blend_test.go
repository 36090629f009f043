package blend

import (
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constLogits(classVals []float64, h, w int) *sparse.DenseArray {
	a := sparse.ZerosDense(len(classVals), h, w)
	for cls, v := range classVals {
		for i := 0; i < h*w; i++ {
			a.Elements[cls*h*w+i] = v
		}
	}
	return a
}

func TestWeightsPartitionOfUnity(t *testing.T) {
	for _, n := range []int{4, 8, 224} {
		ws := Weights(n, n)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				sum := 0.0
				for i := 0; i < 3; i++ {
					for j := 0; j < 3; j++ {
						sum += ws.Masks[i][j].At(r, c)
					}
				}
				assert.InDelta(t, 1.0, sum, 1e-12, "n=%d r=%d c=%d", n, r, c)
			}
		}
	}
}

func TestWeightsCenterPeak(t *testing.T) {
	ws := Weights(8, 8)
	center := ws.Masks[1][1]

	// The own weight vanishes on the tile border and peaks in the middle.
	assert.Equal(t, 0.0, center.At(0, 0))
	assert.Equal(t, 0.0, center.At(0, 5))
	assert.Equal(t, 0.0, center.At(7, 3))
	// basis(8) peaks at 6/7 on pixels 3 and 4, so the 2-D peak is (6/7)^2.
	assert.InDelta(t, 36.0/49.0, center.At(3, 3), 1e-12)
	assert.InDelta(t, 36.0/49.0, center.At(4, 4), 1e-12)
	assert.Greater(t, center.At(3, 3), center.At(2, 2))
}

func TestWeightsCached(t *testing.T) {
	assert.Same(t, Weights(16, 16), Weights(16, 16))
}

func TestApplyAgreementIsIdentity(t *testing.T) {
	// When the tile and all eight neighbors agree everywhere, blending must
	// reproduce the agreed logits exactly: the weights are a partition of
	// unity.
	own := constLogits([]float64{0.3, 0.7}, 8, 8)
	same := func() *sparse.DenseArray { return constLogits([]float64{0.3, 0.7}, 8, 8) }
	nb := Neighbors{
		TL: same(), Up: same(), TR: same(),
		Le: same(), Ri: same(),
		BL: same(), Do: same(), BR: same(),
	}

	out, err := Apply(own, nb)
	require.NoError(t, err)
	for i, v := range out.Elements {
		assert.InDelta(t, own.Elements[i], v, 1e-12, "element %d", i)
	}
}

func TestApplyAllAbsentAttenuates(t *testing.T) {
	// With no neighbors the own logits are scaled by the center mask, not
	// renormalized: certainty decays toward tile edges.
	own := constLogits([]float64{1, 2}, 8, 8)
	out, err := Apply(own, Neighbors{})
	require.NoError(t, err)

	center := Weights(8, 8).Masks[1][1]
	h, w := 8, 8
	for cls := 0; cls < 2; cls++ {
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				want := own.Elements[(cls*h+r)*w+c] * center.At(r, c)
				assert.InDelta(t, want, out.Elements[(cls*h+r)*w+c], 1e-12)
			}
		}
	}
}

func TestApplySingleNeighborRegion(t *testing.T) {
	// A lone right neighbor influences only the right half of the tile.
	own := constLogits([]float64{1, 0}, 8, 8)
	ri := constLogits([]float64{0, 5}, 8, 8)

	out, err := Apply(own, Neighbors{Ri: ri})
	require.NoError(t, err)

	h, w := 8, 8
	for r := 0; r < h; r++ {
		for c := 0; c < w/2; c++ {
			assert.Zero(t, out.Elements[(1*h+r)*w+c], "left half must stay untouched")
		}
	}
	// The neighbor's weight is positive somewhere in the right half.
	touched := false
	for r := 0; r < h; r++ {
		for c := w / 2; c < w; c++ {
			if out.Elements[(1*h+r)*w+c] > 0 {
				touched = true
			}
		}
	}
	assert.True(t, touched)
}

func TestApplyRejectsBadShapes(t *testing.T) {
	flat := sparse.ZerosDense(4, 4)
	_, err := Apply(flat, Neighbors{})
	assert.Error(t, err)

	own := constLogits([]float64{1, 2}, 8, 8)
	_, err = Apply(own, Neighbors{Up: constLogits([]float64{1, 2}, 6, 6)})
	assert.Error(t, err)
}

func TestArgmax(t *testing.T) {
	a := sparse.ZerosDense(3, 2, 2)
	// Pixel (0,0): class 2 wins; (0,1): class 1; (1,0): tie goes to the
	// lowest class; (1,1): class 0.
	set := func(cls, r, c int, v float64) { a.Elements[(cls*2+r)*2+c] = v }
	set(2, 0, 0, 3)
	set(1, 0, 1, 2)
	set(0, 1, 0, 1)
	set(1, 1, 0, 1)
	set(0, 1, 1, 4)

	assert.Equal(t, []uint8{2, 1, 0, 0}, Argmax(a))
}
