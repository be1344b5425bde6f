package geom

import "gonum.org/v1/gonum/spatial/r3"

// Below reports whether v lies strictly below the axis-aligned plane.
// Points on the plane count as above, so an edge crosses the plane exactly
// when Below differs between its endpoints.
func Below(v r3.Vec, axis Axis, plane float64) bool {
	return axis.Coord(v) < plane
}

// Straddles reports whether the segment [a, b] crosses the plane.
func Straddles(a, b r3.Vec, axis Axis, plane float64) bool {
	return Below(a, axis, plane) != Below(b, axis, plane)
}

// PlaneEdgeIntersect linearly interpolates the point where segment [a, b]
// meets the plane perpendicular to axis at the given coordinate. The
// segment is expected to straddle the plane; if both endpoints share the
// same coordinate a is returned.
func PlaneEdgeIntersect(a, b r3.Vec, axis Axis, plane float64) r3.Vec {
	ca, cb := axis.Coord(a), axis.Coord(b)
	if ca == cb {
		return a
	}
	t := (plane - ca) / (cb - ca)
	p := r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
	// Snap the sliced coordinate so downstream extent checks see an exact plane.
	return axis.With(p, plane)
}
