// Package trim cuts unwanted regions from a scan: everything above a
// plane, or every face that strays too far from a reference surface.
// All functions return a new mesh and leave their input unchanged.
package trim

import (
	"errors"
	"fmt"
	"math"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmpty is returned when a trim would remove every face.
	ErrEmpty = errors.New("trim removes every face")
	// ErrDegeneratePlane is returned for a three point plane whose points
	// are collinear or whose normal lies in the xy plane.
	ErrDegeneratePlane = errors.New("degenerate trim plane")
)

// cutter decides which side of a cut a vertex is on and where a vertex on
// a crossing face lands.
type cutter struct {
	above func(v r3.Vec) bool
	snap  func(v r3.Vec) r3.Vec
}

// Planar removes everything above height along axis. Faces wholly above
// are dropped; vertices above on faces that cross the plane are pulled
// down onto it, so the cut rim lies exactly at height.
func Planar(m *mesh.Mesh, height float64, axis geom.Axis) (*mesh.Mesh, error) {
	if !axis.Valid() {
		return nil, fmt.Errorf("planar trim: invalid axis %v", axis)
	}
	out, err := cut(m, cutter{
		above: func(v r3.Vec) bool { return axis.Coord(v) > height },
		snap:  func(v r3.Vec) r3.Vec { return axis.With(v, height) },
	})
	if err != nil {
		return nil, fmt.Errorf("planar trim at %s=%g: %w", axis, height, err)
	}
	return out, nil
}

// ThreePoint removes everything above the plane through p0, p1 and p2,
// where above means greater z than the plane at the same x and y. Vertices
// of crossing faces are moved along z onto the plane.
func ThreePoint(m *mesh.Mesh, p0, p1, p2 r3.Vec) (*mesh.Mesh, error) {
	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	}
	if math.Abs(n.Z) < 1e-12 {
		return nil, fmt.Errorf("three point trim: %w", ErrDegeneratePlane)
	}
	k := -r3.Dot(n, p0)
	height := func(v r3.Vec) float64 { return -(n.X*v.X + n.Y*v.Y + k) / n.Z }

	out, err := cut(m, cutter{
		above: func(v r3.Vec) bool { return v.Z > height(v) },
		snap:  func(v r3.Vec) r3.Vec { v.Z = height(v); return v },
	})
	if err != nil {
		return nil, fmt.Errorf("three point trim: %w", err)
	}
	return out, nil
}

func cut(m *mesh.Mesh, c cutter) (*mesh.Mesh, error) {
	verts := append([]r3.Vec(nil), m.Vertices...)
	above := make([]bool, len(verts))
	for i, v := range verts {
		above[i] = c.above(v)
	}

	keep := make([]bool, len(m.Faces))
	for f, face := range m.Faces {
		n := 0
		for _, v := range face {
			if above[v] {
				n++
			}
		}
		keep[f] = n < 3
		if n == 1 || n == 2 {
			for _, v := range face {
				if above[v] {
					verts[v] = c.snap(verts[v])
				}
			}
		}
	}
	return compact(m, verts, keep)
}

// Dynamic keeps the faces of m whose centroid lies within maxDist of some
// vertex of ref, and drops vertices left without a face. It removes the
// parts of a scan that have no counterpart in the reference.
func Dynamic(m, ref *mesh.Mesh, maxDist float64) (*mesh.Mesh, error) {
	if !(maxDist > 0) {
		return nil, fmt.Errorf("dynamic trim: distance must be positive, got %g", maxDist)
	}
	idx := spatial.NewVertexIndex(ref)
	if idx.Len() == 0 {
		return nil, fmt.Errorf("dynamic trim: empty reference: %w", ErrEmpty)
	}
	keep := make([]bool, len(m.Faces))
	for f := range m.Faces {
		keep[f] = idx.Nearest(m.Centroid(f)).Dist < maxDist
	}
	out, err := compact(m, m.Vertices, keep)
	if err != nil {
		return nil, fmt.Errorf("dynamic trim: %w", err)
	}
	return out, nil
}

// compact builds a mesh from the kept faces, renumbering the vertices they
// reference in their original order and carrying their values along.
func compact(m *mesh.Mesh, verts []r3.Vec, keep []bool) (*mesh.Mesh, error) {
	remap := make([]int, len(verts))
	for i := range remap {
		remap[i] = -1
	}
	var d mesh.Data
	for f, face := range m.Faces {
		if !keep[f] {
			continue
		}
		for _, v := range face {
			remap[v] = 0
		}
	}
	for i, r := range remap {
		if r < 0 {
			continue
		}
		remap[i] = len(d.Vertices)
		d.Vertices = append(d.Vertices, verts[i])
		if len(m.Values) == len(verts) {
			d.Values = append(d.Values, m.Values[i])
		}
	}
	for f, face := range m.Faces {
		if keep[f] {
			d.Faces = append(d.Faces, [3]int{remap[face[0]], remap[face[1]], remap[face[2]]})
		}
	}
	if len(d.Faces) == 0 {
		return nil, ErrEmpty
	}
	return mesh.FromData(d)
}
