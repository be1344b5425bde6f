package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Barycentric returns the weights (u, v, w) of p with respect to the
// triangle (a, b, c), so that p = u·a + v·b + w·c when p lies in the plane of
// the triangle. For a degenerate triangle all three weights are NaN.
func Barycentric(p, a, b, c r3.Vec) (u, v, w float64) {
	v0 := r3.Sub(b, a)
	v1 := r3.Sub(c, a)
	v2 := r3.Sub(p, a)
	d00 := r3.Dot(v0, v0)
	d01 := r3.Dot(v0, v1)
	d11 := r3.Dot(v1, v1)
	d20 := r3.Dot(v2, v0)
	d21 := r3.Dot(v2, v1)
	denom := d00*d11 - d01*d01
	if denom == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	v = (d11*d20 - d01*d21) / denom
	w = (d00*d21 - d01*d20) / denom
	u = 1 - v - w
	return u, v, w
}

// Inside reports whether all barycentric weights of p are at least -tol.
func Inside(p, a, b, c r3.Vec, tol float64) bool {
	u, v, w := Barycentric(p, a, b, c)
	return u >= -tol && v >= -tol && w >= -tol
}

// ClosestPointOnSegment returns the point of segment [a, b] nearest to p.
func ClosestPointOnSegment(p, a, b r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := r3.Dot(r3.Sub(p, a), ab) / l2
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return r3.Add(a, r3.Scale(t, ab))
}

// ClampToTriangle returns p unchanged (rebuilt from its weights so it lies
// exactly in the triangle's plane) when it falls inside the closed triangle
// (a, b, c). Otherwise it returns the closest point on the nearest of the
// three edges, which may be one of the corners. The result always lies in
// the closed triangle, including for degenerate triangles.
func ClampToTriangle(p, a, b, c r3.Vec) r3.Vec {
	u, v, w := Barycentric(p, a, b, c)
	if u >= 0 && v >= 0 && w >= 0 {
		return r3.Add(r3.Add(r3.Scale(u, a), r3.Scale(v, b)), r3.Scale(w, c))
	}

	best := ClosestPointOnSegment(p, a, b)
	bestD := r3.Norm2(r3.Sub(p, best))
	for _, e := range [2][2]r3.Vec{{b, c}, {c, a}} {
		q := ClosestPointOnSegment(p, e[0], e[1])
		if d := r3.Norm2(r3.Sub(p, q)); d < bestD {
			best, bestD = q, d
		}
	}
	return best
}

// ProjectOntoPlane returns the foot of the perpendicular from p onto the
// plane through origin with normal n. n need not be unit length; a zero
// normal leaves p unchanged.
func ProjectOntoPlane(p, origin, n r3.Vec) r3.Vec {
	mag := r3.Norm2(n)
	if mag == 0 {
		return p
	}
	t := r3.Dot(n, r3.Sub(origin, p)) / mag
	return r3.Add(p, r3.Scale(t, n))
}

// ClosestPointOnTriangle projects p onto the triangle's plane and clamps the
// result into the triangle.
func ClosestPointOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	return ClampToTriangle(ProjectOntoPlane(p, a, n), a, b, c)
}
