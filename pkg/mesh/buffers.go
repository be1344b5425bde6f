package mesh

// Buffers is a flat triangle layout for rendering and export collaborators.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z), normals has
// 3 floats per vertex, indices has 3 uint32s per triangle and values has one
// float per vertex.
type Buffers struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Values   []float32 `json:"values,omitempty"`
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (b *Buffers) VertexCount() int {
	return len(b.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (b *Buffers) TriangleCount() int {
	return len(b.Indices) / 3
}

// IsEmpty returns true if the buffers hold no geometry.
func (b *Buffers) IsEmpty() bool {
	return len(b.Vertices) == 0
}

// Buffers flattens the mesh, using vertex normals (computed if missing).
func (m *Mesh) Buffers(name string) *Buffers {
	if len(m.VertexNormals) != len(m.Vertices) {
		m.CalcVNorm()
	}
	b := &Buffers{
		Vertices: make([]float32, 0, 3*len(m.Vertices)),
		Normals:  make([]float32, 0, 3*len(m.Vertices)),
		Indices:  make([]uint32, 0, 3*len(m.Faces)),
		Name:     name,
	}
	for i, v := range m.Vertices {
		n := m.VertexNormals[i]
		b.Vertices = append(b.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
		b.Normals = append(b.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	for _, f := range m.Faces {
		b.Indices = append(b.Indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	if len(m.Values) == len(m.Vertices) {
		b.Values = make([]float32, len(m.Values))
		for i, v := range m.Values {
			b.Values[i] = float32(v)
		}
	}
	return b
}
