package geometry

// PointInRing reports whether p lies inside the closed ring using the
// even-odd rule. The ring does not need to repeat its first vertex.
func PointInRing(p Point2D, ring []Point2D) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		pi, pj := ring[i], ring[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// SegmentIntersectsRect reports whether the segment a-b touches the
// rectangle. Uses the Cohen-Sutherland outcode trick: trivially accept when
// an endpoint is inside, trivially reject when both endpoints share an
// outside half-plane, otherwise test the segment against each edge.
func SegmentIntersectsRect(a, b Point2D, r Rect) bool {
	if r.Contains(a) || r.Contains(b) {
		return true
	}

	outcode := func(p Point2D) int {
		code := 0
		if p.X < r.X {
			code |= 1
		} else if p.X > r.X+r.Width {
			code |= 2
		}
		if p.Y < r.Y {
			code |= 4
		} else if p.Y > r.Y+r.Height {
			code |= 8
		}
		return code
	}
	if outcode(a)&outcode(b) != 0 {
		return false
	}

	corners := r.Corners()
	for i := 0; i < 4; i++ {
		if SegmentsIntersect(a, b, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

// SegmentsIntersect reports whether segments p1-p2 and p3-p4 intersect,
// touching endpoints included.
func SegmentsIntersect(p1, p2, p3, p4 Point2D) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return d1 == 0 && onSegment(p3, p4, p1) ||
		d2 == 0 && onSegment(p3, p4, p2) ||
		d3 == 0 && onSegment(p1, p2, p3) ||
		d4 == 0 && onSegment(p1, p2, p4)
}

func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(a, b, p Point2D) bool {
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}
