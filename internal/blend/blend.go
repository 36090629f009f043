package blend

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// Neighbors holds the logits of the up-to-eight adjacent offset-lattice
// tiles. A nil entry means the neighbor is absent (lattice boundary or
// unusable tile); its region still attenuates the own-tile weight rather
// than being renormalized, so certainty is lost near hard edges instead of
// fabricated.
type Neighbors struct {
	TL, Up, TR *sparse.DenseArray
	Le, Ri     *sparse.DenseArray
	BL, Do, BR *sparse.DenseArray
}

// Apply blends a tile's own logits with its neighbors' logits. Each edge
// neighbor contributes through the half-tile strip nearest it, each corner
// neighbor through the nearest quarter-tile block, using the mirrored slice
// of the neighbor's own data. The result has the same shape as own.
func Apply(own *sparse.DenseArray, nb Neighbors) (*sparse.DenseArray, error) {
	if len(own.Shape) != 3 {
		return nil, fmt.Errorf("blend: logits must be [classes, h, w], got %v", own.Shape)
	}
	cn, h, w := own.Shape[0], own.Shape[1], own.Shape[2]
	h2, w2 := h/2, w/2
	ws := Weights(h, w)

	out := sparse.ZerosDense(cn, h, w)

	// Own contribution over the full tile.
	center := ws.Masks[1][1]
	for cls := 0; cls < cn; cls++ {
		base := cls * h * w
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				out.Elements[base+r*w+c] = own.Elements[base+r*w+c] * center.At(r, c)
			}
		}
	}

	// Each neighbor contributes its mirrored slice: the top neighbor's
	// bottom half lands on this tile's top half, and so on.
	add := func(nbArr *sparse.DenseArray, wi, wj, r0, r1, c0, c1, offR, offC int) error {
		if nbArr == nil {
			return nil
		}
		if nbArr.Shape[0] != cn || nbArr.Shape[1] != h || nbArr.Shape[2] != w {
			return fmt.Errorf("blend: neighbor shape %v does not match %v", nbArr.Shape, own.Shape)
		}
		wgt := ws.Masks[wi][wj]
		for cls := 0; cls < cn; cls++ {
			base := cls * h * w
			for r := r0; r < r1; r++ {
				for c := c0; c < c1; c++ {
					out.Elements[base+r*w+c] +=
						nbArr.Elements[base+(r+offR)*w+(c+offC)] * wgt.At(r, c)
				}
			}
		}
		return nil
	}

	steps := []error{
		add(nb.TL, 0, 0, 0, h2, 0, w2, h2, w2),
		add(nb.Up, 0, 1, 0, h2, 0, w, h2, 0),
		add(nb.TR, 0, 2, 0, h2, w2, w, h2, -w2),
		add(nb.Le, 1, 0, 0, h, 0, w2, 0, w2),
		add(nb.Ri, 1, 2, 0, h, w2, w, 0, -w2),
		add(nb.BL, 2, 0, h2, h, 0, w2, -h2, w2),
		add(nb.Do, 2, 1, h2, h, 0, w, -h2, 0),
		add(nb.BR, 2, 2, h2, h, w2, w, -h2, -w2),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Argmax converts [classes, h, w] logits to a row-major [h*w] class map.
func Argmax(logits *sparse.DenseArray) []uint8 {
	cn, h, w := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	out := make([]uint8, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			best := 0
			bestV := logits.Elements[r*w+c]
			for cls := 1; cls < cn; cls++ {
				v := logits.Elements[(cls*h+r)*w+c]
				if v > bestV {
					bestV = v
					best = cls
				}
			}
			out[r*w+c] = uint8(best)
		}
	}
	return out
}
