package mesh

import (
	"cmp"
	"slices"
)

// StructOptions selects which derived arrays CalcStruct recomputes.
type StructOptions struct {
	Norm      bool // face normals
	VNorm     bool // vertex normals
	Edges     bool // unique edges plus FaceEdges
	EdgeFaces bool // edge to face adjacency; implies Edges
}

// AllStruct enables every stage.
func AllStruct() StructOptions {
	return StructOptions{Norm: true, VNorm: true, Edges: true, EdgeFaces: true}
}

// NormOnly refreshes normals after a pure position edit.
func NormOnly() StructOptions {
	return StructOptions{Norm: true, VNorm: true}
}

// CalcStruct recomputes the selected derived arrays. Face connectivity
// edits (trimming, hole closing) need the edge stages; position edits only
// need normals.
func (m *Mesh) CalcStruct(opts StructOptions) {
	if opts.Norm || opts.VNorm {
		m.CalcNorm()
	}
	if opts.VNorm {
		m.CalcVNorm()
	}
	if opts.Edges || opts.EdgeFaces {
		m.CalcEdges()
	}
	if opts.EdgeFaces {
		m.CalcEdgeFaces()
	}
}

func sortedPair(a, b int) [2]int {
	if a > b {
		return [2]int{b, a}
	}
	return [2]int{a, b}
}

func comparePair(a, b [2]int) int {
	if c := cmp.Compare(a[0], b[0]); c != 0 {
		return c
	}
	return cmp.Compare(a[1], b[1])
}

// CalcEdges enumerates the three vertex pairs of every face, sorts each
// pair, deduplicates them globally and records the inverse mapping as
// FaceEdges. Edges come out in lexicographic order.
func (m *Mesh) CalcEdges() {
	pairs := make([][2]int, 0, 3*len(m.Faces))
	for _, f := range m.Faces {
		pairs = append(pairs,
			sortedPair(f[0], f[1]),
			sortedPair(f[0], f[2]),
			sortedPair(f[1], f[2]),
		)
	}

	order := make([]int, len(pairs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return comparePair(pairs[a], pairs[b])
	})

	edges := make([][2]int, 0, len(pairs)/2+1)
	inverse := make([]int, len(pairs))
	for k, i := range order {
		if k == 0 || pairs[i] != pairs[order[k-1]] {
			edges = append(edges, pairs[i])
		}
		inverse[i] = len(edges) - 1
	}

	m.Edges = edges
	m.FaceEdges = make([][3]int, len(m.Faces))
	for f := range m.Faces {
		m.FaceEdges[f] = [3]int{inverse[3*f], inverse[3*f+1], inverse[3*f+2]}
	}
}

// CalcEdgeFaces records, for each edge, the first face that references it
// in slot 0 and the second in slot 1. Edges referenced once keep NoFace in
// slot 1. Edges with more than two faces are not supported; the extra faces
// are ignored.
func (m *Mesh) CalcEdgeFaces() {
	if len(m.FaceEdges) != len(m.Faces) {
		m.CalcEdges()
	}
	ef := make([][2]int, len(m.Edges))
	for i := range ef {
		ef[i] = [2]int{NoFace, NoFace}
	}
	for f, fe := range m.FaceEdges {
		for _, e := range fe {
			switch {
			case ef[e][0] == NoFace:
				ef[e][0] = f
			case ef[e][1] == NoFace && ef[e][0] != f:
				ef[e][1] = f
			}
		}
	}
	m.EdgeFaces = ef
}

// IsBoundaryEdge reports whether edge e has a single adjacent face.
func (m *Mesh) IsBoundaryEdge(e int) bool {
	return m.EdgeFaces[e][1] == NoFace
}

// BoundaryEdges returns the indices of all boundary edges.
func (m *Mesh) BoundaryEdges() []int {
	var out []int
	for e := range m.EdgeFaces {
		if m.IsBoundaryEdge(e) {
			out = append(out, e)
		}
	}
	return out
}

// BoundaryVertices flags every vertex that touches a boundary edge.
func (m *Mesh) BoundaryVertices() []bool {
	out := make([]bool, len(m.Vertices))
	for e, pair := range m.Edges {
		if m.IsBoundaryEdge(e) {
			out[pair[0]] = true
			out[pair[1]] = true
		}
	}
	return out
}

// Adjacency is a grouped view of the edge list: the 1-ring of vertex v is
// a contiguous slice, found in O(1).
type Adjacency struct {
	offsets    []int
	neighbours []int
}

// Of returns the neighbours of vertex v. The slice must not be modified.
func (a *Adjacency) Of(v int) []int {
	return a.neighbours[a.offsets[v]:a.offsets[v+1]]
}

// Len returns the number of vertices covered.
func (a *Adjacency) Len() int {
	return len(a.offsets) - 1
}

// Adjacency builds the vertex 1-ring view from Edges. Edges must be
// current.
func (m *Mesh) Adjacency() *Adjacency {
	n := len(m.Vertices)
	offsets := make([]int, n+1)
	for _, e := range m.Edges {
		offsets[e[0]+1]++
		offsets[e[1]+1]++
	}
	for i := 1; i <= n; i++ {
		offsets[i] += offsets[i-1]
	}
	fill := append([]int(nil), offsets[:n]...)
	neighbours := make([]int, 2*len(m.Edges))
	for _, e := range m.Edges {
		neighbours[fill[e[0]]] = e[1]
		fill[e[0]]++
		neighbours[fill[e[1]]] = e[0]
		fill[e[1]]++
	}
	return &Adjacency{offsets: offsets, neighbours: neighbours}
}
