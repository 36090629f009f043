// Package rivers loads a river network from a shapefile and indexes it for
// spatial queries during frontier seeding.
package rivers

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
)

// Segment is one river reach tagged with its upstream flow accumulation,
// the RiverATLAS "riv_tc_usu" attribute.
type Segment struct {
	geom.LineString
	Riv_tc_usu float64
}

// Size returns the flow-accumulation size used for seeding thresholds.
func (s *Segment) Size() float64 { return s.Riv_tc_usu }

// Network is an rtree-indexed set of river segments.
type Network struct {
	tree     *rtree.Rtree
	segments []*Segment
}

// Load reads river segments from a shapefile, dropping reaches at or below
// minSize. Pass 0 to keep everything.
func Load(path string, minSize float64) (*Network, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("rivers: open %s: %w", path, err)
	}
	defer d.Close()

	n := &Network{tree: rtree.NewTree(25, 50)}
	for {
		var rec Segment
		if more := d.DecodeRow(&rec); !more {
			break
		}
		if rec.Riv_tc_usu <= minSize {
			continue
		}
		seg := rec
		n.segments = append(n.segments, &seg)
		n.tree.Insert(&seg)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("rivers: decode %s: %w", path, err)
	}
	return n, nil
}

// FromSegments builds a network from in-memory segments (used by tests).
func FromSegments(segs []*Segment) *Network {
	n := &Network{tree: rtree.NewTree(25, 50)}
	for _, s := range segs {
		n.segments = append(n.segments, s)
		n.tree.Insert(s)
	}
	return n
}

// Len returns the number of indexed segments.
func (n *Network) Len() int { return len(n.segments) }

// Within returns the segments whose bounds overlap b and whose size
// exceeds minSize.
func (n *Network) Within(b *geom.Bounds, minSize float64) []*Segment {
	var out []*Segment
	for _, item := range n.tree.SearchIntersect(b) {
		seg := item.(*Segment)
		if seg.Size() > minSize {
			out = append(out, seg)
		}
	}
	return out
}
