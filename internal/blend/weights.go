// Package blend smooths per-tile logits across tile boundaries so that the
// stitched class map shows no seams.
//
// A 3x3 control grid is bilinearly interpolated over the tile: the center
// control point carries the tile's own weight (1 at the center, falling to
// 0 at edges and corners) and the eight outer control points carry the
// weights of the corresponding neighbors. The nine interpolated masks form
// a partition of unity, so blending is a convex combination wherever all
// neighbors are present.
package blend

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// WeightSet holds the nine interpolated weight masks for one tile size.
// Masks[i][j] is the mask of the neighbor in grid position (i, j), with
// Masks[1][1] being the tile's own weight.
type WeightSet struct {
	H, W  int
	Masks [3][3]*mat.Dense
}

var (
	weightMu    sync.Mutex
	weightCache = map[[2]int]*WeightSet{}
)

// Weights returns the cached weight set for an h-by-w tile, computing it on
// first use.
func Weights(h, w int) *WeightSet {
	key := [2]int{h, w}
	weightMu.Lock()
	defer weightMu.Unlock()
	if ws, ok := weightCache[key]; ok {
		return ws
	}
	ws := makeWeights(h, w)
	weightCache[key] = ws
	return ws
}

func makeWeights(h, w int) *WeightSet {
	// The half-pixel offset on the middle knot centers the peak between
	// the two middle pixels; the outer knots sit on the first and last
	// pixel so the masks reach exactly 0/1 at tile edges.
	by := basis(h)
	bx := basis(w)

	ws := &WeightSet{H: h, W: w}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m := mat.NewDense(h, w, nil)
			for r := 0; r < h; r++ {
				for c := 0; c < w; c++ {
					m.Set(r, c, by[r][i]*bx[c][j])
				}
			}
			ws.Masks[i][j] = m
		}
	}
	return ws
}

// basis evaluates the three piecewise-linear basis functions over knots
// [0, n/2-0.5, n-1] at every pixel index. Each row sums to 1.
func basis(n int) [][3]float64 {
	k0, k1, k2 := 0.0, float64(n)/2-0.5, float64(n-1)
	out := make([][3]float64, n)
	for t := 0; t < n; t++ {
		ft := float64(t)
		var b [3]float64
		if ft <= k1 {
			b[0] = (k1 - ft) / (k1 - k0)
			b[1] = 1 - b[0]
		} else {
			b[1] = (k2 - ft) / (k2 - k1)
			b[2] = 1 - b[1]
		}
		out[t] = b
	}
	return out
}
