package analyse

import (
	"context"
	"fmt"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultCloseIterations caps the rounds of hole filling in Close.
const DefaultCloseIterations = 16

// Close returns a watertight copy of m. Each round walks every boundary
// loop, adds a vertex at the loop's mean and fans new faces from it to the
// loop's edges, wound to agree with the faces they border. Structure is
// then rebuilt and the process repeats until no boundary edges remain.
// If maxIter rounds are not enough the error wraps ErrCloseExhausted.
// maxIter < 1 selects DefaultCloseIterations.
func Close(ctx context.Context, m *mesh.Mesh, maxIter int) (*mesh.Mesh, error) {
	if maxIter < 1 {
		maxIter = DefaultCloseIterations
	}
	out := m.Clone()
	out.CalcStruct(mesh.AllStruct())

	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
		loops := boundaryLoops(out)
		if len(loops) == 0 {
			return out, nil
		}
		for _, loop := range loops {
			fill(out, loop)
		}
		out.CalcStruct(mesh.AllStruct())
	}
	if len(out.BoundaryEdges()) == 0 {
		return out, nil
	}
	return nil, fmt.Errorf("close: %d boundary edges left after %d rounds: %w",
		len(out.BoundaryEdges()), maxIter, ErrCloseExhausted)
}

// rimLoop is a chain of boundary vertices in face winding order. An open
// chain only arises around non-manifold vertices.
type rimLoop struct {
	verts  []int
	closed bool
}

// boundaryLoops returns the rim loops of m in the winding order of the
// faces that own their edges.
func boundaryLoops(m *mesh.Mesh) []rimLoop {
	bound := m.BoundaryEdges()
	next := make(map[int][]int)
	for _, e := range bound {
		a, b := directed(m, e)
		next[a] = append(next[a], b)
	}

	var loops []rimLoop
	for _, e := range bound {
		start, _ := directed(m, e)
		if len(next[start]) == 0 {
			continue
		}
		loop := rimLoop{verts: []int{start}}
		v := start
		for steps := 0; steps <= len(bound); steps++ {
			succ := next[v]
			if len(succ) == 0 {
				break
			}
			w := succ[0]
			next[v] = succ[1:]
			if w == start {
				loop.closed = true
				break
			}
			loop.verts = append(loop.verts, w)
			v = w
		}
		if len(loop.verts) >= 2 {
			loops = append(loops, loop)
		}
	}
	return loops
}

// directed returns the endpoints of boundary edge e in the order they
// appear in its face.
func directed(m *mesh.Mesh, e int) (int, int) {
	a, b := m.Edges[e][0], m.Edges[e][1]
	f := m.Faces[m.EdgeFaces[e][0]]
	for i := 0; i < 3; i++ {
		if f[i] == b && f[(i+1)%3] == a {
			return b, a
		}
	}
	return a, b
}

// fill fans a loop from a new vertex at its mean. Each loop edge a→b is
// used by its existing face in that direction, so the new face runs b→a.
func fill(m *mesh.Mesh, loop rimLoop) {
	var c r3.Vec
	for _, v := range loop.verts {
		c = r3.Add(c, m.Vertices[v])
	}
	n := len(loop.verts)
	c = r3.Scale(1/float64(n), c)

	centre := len(m.Vertices)
	m.Vertices = append(m.Vertices, c)
	if len(m.Values) == centre {
		mean := 0.0
		for _, v := range loop.verts {
			mean += m.Values[v]
		}
		m.Values = append(m.Values, mean/float64(n))
	}
	last := n - 1
	if loop.closed {
		last = n
	}
	for i := 0; i < last; i++ {
		a, b := loop.verts[i], loop.verts[(i+1)%n]
		m.Faces = append(m.Faces, [3]int{b, a, centre})
	}
}

// ClosedVolume returns the volume enclosed by a watertight mesh with
// outward normals, as the sum over faces of area·mean z·normal z.
func ClosedVolume(m *mesh.Mesh) float64 {
	vol := 0.0
	for f := range m.Faces {
		a, b, c := m.Corners(f)
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		// |n|/2 is the area and n/|n| the unit normal, so area·nz = nz/2.
		vol += (a.Z + b.Z + c.Z) / 3 * n.Z / 2
	}
	return vol
}

// CloseVolume closes m and returns the volume of the closed copy along
// with the copy itself.
func CloseVolume(ctx context.Context, m *mesh.Mesh, maxIter int) (float64, *mesh.Mesh, error) {
	closed, err := Close(ctx, m, maxIter)
	if err != nil {
		return 0, nil, err
	}
	return ClosedVolume(closed), closed, nil
}
