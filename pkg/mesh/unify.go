package mesh

import "gonum.org/v1/gonum/spatial/r3"

// Unify merges vertices with exactly equal coordinates and remaps the faces
// onto the survivors. The first occurrence of each position keeps its
// relative order, so unifying an already unified mesh leaves both the
// vertex array and the face indices untouched. Per-vertex values and
// normals follow their surviving vertex.
//
// Unify returns the number of vertices removed. If anything was merged and
// the mesh already carried edge structure, the structure is rebuilt.
func (m *Mesh) Unify() int {
	index := make(map[r3.Vec]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	keep := make([]int, 0, len(m.Vertices))
	for i, v := range m.Vertices {
		if j, ok := index[v]; ok {
			remap[i] = j
			continue
		}
		index[v] = len(keep)
		remap[i] = len(keep)
		keep = append(keep, i)
	}

	removed := len(m.Vertices) - len(keep)
	if removed == 0 {
		return 0
	}

	verts := make([]r3.Vec, len(keep))
	for n, i := range keep {
		verts[n] = m.Vertices[i]
	}
	if len(m.Values) == len(m.Vertices) {
		vals := make([]float64, len(keep))
		for n, i := range keep {
			vals[n] = m.Values[i]
		}
		m.Values = vals
	}
	if len(m.VertexNormals) == len(m.Vertices) {
		vn := make([]r3.Vec, len(keep))
		for n, i := range keep {
			vn[n] = m.VertexNormals[i]
		}
		m.VertexNormals = vn
	}
	m.Vertices = verts

	for i, f := range m.Faces {
		m.Faces[i] = [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
	}

	if m.Edges != nil {
		m.CalcStruct(AllStruct())
	}
	return removed
}
