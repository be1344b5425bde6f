package mesh

import "gonum.org/v1/gonum/spatial/r3"

// CalcNorm computes the unit normal (v1-v0)×(v2-v0) of every face. A
// degenerate face gets the zero vector.
func (m *Mesh) CalcNorm() {
	if len(m.FaceNormals) != len(m.Faces) {
		m.FaceNormals = make([]r3.Vec, len(m.Faces))
	}
	for i := range m.Faces {
		a, b, c := m.Corners(i)
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		} else {
			n = r3.Vec{}
		}
		m.FaceNormals[i] = n
	}
}

// CalcVNorm sets each vertex normal to the unweighted mean of the normals
// of its adjacent faces. Degenerate faces do not contribute; a vertex with
// no contributing face gets the zero vector.
func (m *Mesh) CalcVNorm() {
	if len(m.FaceNormals) != len(m.Faces) {
		m.CalcNorm()
	}
	sum := make([]r3.Vec, len(m.Vertices))
	count := make([]int, len(m.Vertices))
	for f, face := range m.Faces {
		n := m.FaceNormals[f]
		if n == (r3.Vec{}) {
			continue
		}
		for _, v := range face {
			sum[v] = r3.Add(sum[v], n)
			count[v]++
		}
	}
	for v := range sum {
		if count[v] > 0 {
			sum[v] = r3.Scale(1/float64(count[v]), sum[v])
		}
	}
	m.VertexNormals = sum
}
