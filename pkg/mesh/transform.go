package mesh

import (
	"fmt"

	"github.com/abel-research/ampscan/pkg/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Translate moves every vertex by t. Normals are unaffected.
func (m *Mesh) Translate(t r3.Vec) {
	for i, v := range m.Vertices {
		m.Vertices[i] = r3.Add(v, t)
	}
}

// Centre translates the mesh so its mean vertex sits at the origin.
func (m *Mesh) Centre() {
	m.Translate(r3.Scale(-1, m.Mean()))
}

// CentreStatic translates the mesh so its mean vertex coincides with the
// mean vertex of static.
func (m *Mesh) CentreStatic(static *Mesh) {
	m.Translate(r3.Sub(static.Mean(), m.Mean()))
}

// Scale multiplies every vertex by f about the origin.
func (m *Mesh) Scale(f float64) {
	for i, v := range m.Vertices {
		m.Vertices[i] = r3.Scale(f, v)
	}
	if f < 0 {
		m.CalcStruct(NormOnly())
	}
}

// Rotate applies R to every vertex and to the face and vertex normals.
func (m *Mesh) Rotate(r *r3.Mat) {
	for i, v := range m.Vertices {
		m.Vertices[i] = r.MulVec(v)
	}
	for i, n := range m.FaceNormals {
		m.FaceNormals[i] = r.MulVec(n)
	}
	for i, n := range m.VertexNormals {
		m.VertexNormals[i] = r.MulVec(n)
	}
}

// RotateAng rotates by Euler angles about X, then Y, then Z.
func (m *Mesh) RotateAng(ang r3.Vec, unit geom.AngleUnit) {
	m.Rotate(geom.RotationMatrix(ang, unit))
}

// RigidTransform rotates by r, when non-nil, and then translates by t.
func (m *Mesh) RigidTransform(r *r3.Mat, t r3.Vec) {
	if r != nil {
		m.Rotate(r)
	}
	m.Translate(t)
}

// Flip mirrors the mesh in the plane perpendicular to axis. Face winding is
// reversed so the normals still point outward.
func (m *Mesh) Flip(axis geom.Axis) error {
	if !axis.Valid() {
		return fmt.Errorf("flip: invalid axis %d", int(axis))
	}
	for i, v := range m.Vertices {
		m.Vertices[i] = axis.With(v, -axis.Coord(v))
	}
	for i, f := range m.Faces {
		m.Faces[i] = [3]int{f[0], f[2], f[1]}
	}
	if m.Edges != nil {
		// Winding swaps (v0,v1,v2) to (v0,v2,v1); the edge set is unchanged
		// but the per-face edge order follows the new corners.
		m.CalcStruct(AllStruct())
		return nil
	}
	m.CalcStruct(NormOnly())
	return nil
}

// FixNorm reverses the winding of every face whose normal points toward the
// mesh's mean vertex, so closed and near-closed scans end up with outward
// normals. It returns the number of faces flipped.
func (m *Mesh) FixNorm() int {
	if len(m.FaceNormals) != len(m.Faces) {
		m.CalcNorm()
	}
	centre := m.Mean()
	flipped := 0
	for i, f := range m.Faces {
		if r3.Dot(r3.Sub(m.Centroid(i), centre), m.FaceNormals[i]) < 0 {
			m.Faces[i] = [3]int{f[0], f[2], f[1]}
			flipped++
		}
	}
	if flipped == 0 {
		return 0
	}
	if m.Edges != nil {
		m.CalcStruct(AllStruct())
	} else {
		m.CalcStruct(NormOnly())
	}
	return flipped
}
