// Package mesh is the topology engine: it turns raw triangle soup into a
// unified, indexed surface and maintains the derived edge adjacency and
// normals that the smoothing, registration and analysis packages read.
//
// A Mesh is a plain value with exported slices. Operations that edit
// positions in place (transforms) only refresh normals; operations that edit
// connectivity must be followed by CalcStruct. Concurrent mutation is not
// supported.
package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NoFace marks the empty second slot of a boundary edge in EdgeFaces.
const NoFace = -1

// Mesh is a triangulated surface.
type Mesh struct {
	// Vertices are the unique vertex positions; a vertex is identified by
	// its index.
	Vertices []r3.Vec
	// Faces are oriented index triples into Vertices. Counter-clockwise
	// winding seen from outside gives an outward normal.
	Faces [][3]int

	// FaceNormals holds one unit normal per face.
	FaceNormals []r3.Vec
	// VertexNormals, when present, holds the mean adjacent face normal of
	// each vertex.
	VertexNormals []r3.Vec
	// Values is a per-vertex scalar field, e.g. signed deviation.
	Values []float64

	// Edges are unique vertex pairs with Edges[i][0] < Edges[i][1].
	Edges [][2]int
	// EdgeFaces holds the one or two faces adjacent to each edge. Boundary
	// edges carry NoFace in slot 1.
	EdgeFaces [][2]int
	// FaceEdges holds, per face, the edges (v0,v1), (v0,v2), (v1,v2).
	FaceEdges [][3]int
}

// Data is an already indexed vertex/face description, as held by callers
// that produced a mesh elsewhere.
type Data struct {
	Vertices []r3.Vec
	Faces    [][3]int
	Values   []float64
}

// Build constructs a mesh from raw arrays. When faces is nil, vertices is
// treated as triangle soup with one vertex per face corner, as decoded from
// STL. normals, when non-nil, must hold one normal per face; they are
// checked for length only, since face normals are always recomputed from
// the geometry.
//
// The result is always unified and carries full structure.
func Build(vertices []r3.Vec, faces [][3]int, normals []r3.Vec) (*Mesh, error) {
	if faces == nil {
		if len(vertices)%3 != 0 {
			return nil, fmt.Errorf("build: %d soup vertices is not a whole number of triangles: %w",
				len(vertices), ErrCorrupt)
		}
		faces = make([][3]int, len(vertices)/3)
		for i := range faces {
			faces[i] = [3]int{3 * i, 3*i + 1, 3*i + 2}
		}
	}
	if normals != nil && len(normals) != len(faces) {
		return nil, fmt.Errorf("build: %d normals for %d faces: %w", len(normals), len(faces), ErrCorrupt)
	}

	m := &Mesh{
		Vertices: append([]r3.Vec(nil), vertices...),
		Faces:    append([][3]int(nil), faces...),
		Values:   make([]float64, len(vertices)),
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	m.Unify()
	m.CalcStruct(AllStruct())
	return m, nil
}

// FromData constructs a mesh from an already unified description. Values
// may be nil, in which case a zero field is allocated.
func FromData(d Data) (*Mesh, error) {
	m := &Mesh{
		Vertices: append([]r3.Vec(nil), d.Vertices...),
		Faces:    append([][3]int(nil), d.Faces...),
		Values:   append([]float64(nil), d.Values...),
	}
	if d.Values == nil {
		m.Values = make([]float64, len(m.Vertices))
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("from data: %w", err)
	}
	m.CalcStruct(AllStruct())
	return m, nil
}

// Validate checks the invariants that every operation relies on.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, v := range m.Vertices {
		if !finite(v) {
			return fmt.Errorf("vertex %d is not finite: %w", i, ErrCorrupt)
		}
	}
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("face %d references vertex %d of %d: %w", i, idx, n, ErrIndexRange)
			}
		}
	}
	if m.Values != nil && len(m.Values) != n {
		return fmt.Errorf("%d values for %d vertices: %w", len(m.Values), n, ErrLength)
	}
	if m.VertexNormals != nil && len(m.VertexNormals) != n {
		return fmt.Errorf("%d vertex normals for %d vertices: %w", len(m.VertexNormals), n, ErrLength)
	}
	return nil
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices:      append([]r3.Vec(nil), m.Vertices...),
		Faces:         append([][3]int(nil), m.Faces...),
		FaceNormals:   append([]r3.Vec(nil), m.FaceNormals...),
		VertexNormals: append([]r3.Vec(nil), m.VertexNormals...),
		Values:        append([]float64(nil), m.Values...),
		Edges:         append([][2]int(nil), m.Edges...),
		EdgeFaces:     append([][2]int(nil), m.EdgeFaces...),
		FaceEdges:     append([][3]int(nil), m.FaceEdges...),
	}
	return c
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// FaceCount returns the number of faces.
func (m *Mesh) FaceCount() int {
	return len(m.Faces)
}

// IsEmpty returns true if the mesh has no faces.
func (m *Mesh) IsEmpty() bool {
	return len(m.Faces) == 0
}

// Corners returns the three vertex positions of face f.
func (m *Mesh) Corners(f int) (a, b, c r3.Vec) {
	face := m.Faces[f]
	return m.Vertices[face[0]], m.Vertices[face[1]], m.Vertices[face[2]]
}

// Centroid returns the mean of face f's vertices.
func (m *Mesh) Centroid(f int) r3.Vec {
	a, b, c := m.Corners(f)
	return r3.Scale(1.0/3, r3.Add(r3.Add(a, b), c))
}

// Centroids returns every face centroid.
func (m *Mesh) Centroids() []r3.Vec {
	out := make([]r3.Vec, len(m.Faces))
	for i := range m.Faces {
		out[i] = m.Centroid(i)
	}
	return out
}

// FaceArea returns the area of face f.
func (m *Mesh) FaceArea(f int) float64 {
	a, b, c := m.Corners(f)
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// Mean returns the mean vertex position.
func (m *Mesh) Mean() r3.Vec {
	var sum r3.Vec
	for _, v := range m.Vertices {
		sum = r3.Add(sum, v)
	}
	if len(m.Vertices) == 0 {
		return sum
	}
	return r3.Scale(1/float64(len(m.Vertices)), sum)
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
	}
	return b
}
