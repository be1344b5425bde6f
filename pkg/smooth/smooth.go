// Package smooth implements Laplacian and Humphrey's-Classes smoothing over
// a mesh's 1-ring neighbourhoods, for vertex positions, arbitrary vector
// fields (registration displacements) and the scalar values field.
//
// Every iteration reads a snapshot of the previous iteration, so all
// vertices move simultaneously and the result does not depend on vertex
// order.
package smooth

import (
	"fmt"
	"strings"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Method selects the smoothing kernel.
type Method int

const (
	Laplacian Method = iota
	HC
)

// ParseMethod accepts "laplacian" (or "lp") and "hc".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "laplacian", "lp":
		return Laplacian, nil
	case "hc", "humphrey":
		return HC, nil
	}
	return 0, fmt.Errorf("unknown smoothing method %q, expected laplacian or hc", s)
}

func (m Method) String() string {
	switch m {
	case Laplacian:
		return "laplacian"
	case HC:
		return "hc"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Options configures Apply.
type Options struct {
	Method          Method
	Iterations      int
	Beta            float64 // HC blend in [0, 1]; 1 is plain Laplacian
	ExcludeBoundary bool    // keep the open rim fixed
}

// DefaultOptions returns one HC iteration with beta 0.6, rim fixed.
func DefaultOptions() Options {
	return Options{Method: HC, Iterations: 1, Beta: 0.6, ExcludeBoundary: true}
}

// Apply smooths vertex positions as configured.
func Apply(m *mesh.Mesh, opts Options) error {
	if opts.Iterations < 0 {
		return fmt.Errorf("smooth: negative iteration count %d", opts.Iterations)
	}
	switch opts.Method {
	case Laplacian:
		LaplacianSmooth(m, opts.Iterations, opts.ExcludeBoundary)
	case HC:
		if opts.Beta < 0 || opts.Beta > 1 {
			return fmt.Errorf("smooth: beta %g outside [0, 1]", opts.Beta)
		}
		HCSmooth(m, opts.Iterations, opts.Beta, opts.ExcludeBoundary)
	default:
		return fmt.Errorf("smooth: unknown method %v", opts.Method)
	}
	return nil
}

// ensureEdges rebuilds edge structure if it is missing or stale.
func ensureEdges(m *mesh.Mesh) {
	if len(m.FaceEdges) != len(m.Faces) || len(m.EdgeFaces) != len(m.Edges) {
		m.CalcStruct(mesh.StructOptions{Edges: true, EdgeFaces: true})
	}
}

func frozenSet(m *mesh.Mesh, excludeBoundary bool) []bool {
	if !excludeBoundary {
		return nil
	}
	return m.BoundaryVertices()
}

// LaplacianSmooth replaces each vertex with the mean of its neighbours,
// iterations times. Normals are recomputed afterwards.
func LaplacianSmooth(m *mesh.Mesh, iterations int, excludeBoundary bool) {
	HCSmooth(m, iterations, 1, excludeBoundary)
}

// HCSmooth applies Humphrey's-Classes smoothing: each vertex q moves to
// q + β(p−q) − (1−β)·mean(adj−q), with p the Laplacian target. β = 1 is
// plain Laplacian smoothing. Normals are recomputed afterwards.
func HCSmooth(m *mesh.Mesh, iterations int, beta float64, excludeBoundary bool) {
	ensureEdges(m)
	Field(m.Adjacency(), m.Vertices, frozenSet(m, excludeBoundary), iterations, beta)
	m.CalcStruct(mesh.NormOnly())
}

// Field applies HC smoothing in place to a per-vertex vector field. frozen
// may be nil; vertices flagged in it keep their value. Vertices with no
// neighbours are left alone.
func Field(adj *mesh.Adjacency, field []r3.Vec, frozen []bool, iterations int, beta float64) {
	snap := make([]r3.Vec, len(field))
	for it := 0; it < iterations; it++ {
		copy(snap, field)
		for v := range field {
			if frozen != nil && frozen[v] {
				continue
			}
			if next, ok := hcStep(adj.Of(v), snap, v, beta); ok {
				field[v] = next
			}
		}
	}
}

// hcStep computes the HC update of vertex v from the snapshot.
func hcStep(nb []int, snap []r3.Vec, v int, beta float64) (r3.Vec, bool) {
	if len(nb) == 0 {
		return r3.Vec{}, false
	}
	q := snap[v]
	var sum, off r3.Vec
	for _, n := range nb {
		sum = r3.Add(sum, snap[n])
		off = r3.Add(off, r3.Sub(snap[n], q))
	}
	k := 1 / float64(len(nb))
	p := r3.Scale(k, sum)
	d := r3.Scale(k, off)
	return r3.Sub(r3.Add(q, r3.Scale(beta, r3.Sub(p, q))), r3.Scale(1-beta, d)), true
}

// Values applies Laplacian smoothing to the scalar values field.
func Values(m *mesh.Mesh, iterations int) error {
	if len(m.Values) != len(m.Vertices) {
		return fmt.Errorf("smooth values: %d values for %d vertices: %w",
			len(m.Values), len(m.Vertices), mesh.ErrLength)
	}
	ensureEdges(m)
	adj := m.Adjacency()
	snap := make([]float64, len(m.Values))
	for it := 0; it < iterations; it++ {
		copy(snap, m.Values)
		for v := range m.Values {
			nb := adj.Of(v)
			if len(nb) == 0 {
				continue
			}
			sum := 0.0
			for _, n := range nb {
				sum += snap[n]
			}
			m.Values[v] = sum / float64(len(nb))
		}
	}
	return nil
}

// AdjustCoincident repeatedly applies an HC step to vertices that share
// their exact position with another vertex, until none do or maxIter
// iterations have run. It returns the number of iterations applied.
// Normals are refreshed if anything moved.
func AdjustCoincident(m *mesh.Mesh, beta float64, maxIter int) int {
	ensureEdges(m)
	var adj *mesh.Adjacency
	it := 0
	for ; it < maxIter; it++ {
		dups := coincident(m.Vertices)
		if len(dups) == 0 {
			break
		}
		if adj == nil {
			adj = m.Adjacency()
		}
		snap := append([]r3.Vec(nil), m.Vertices...)
		for _, v := range dups {
			if next, ok := hcStep(adj.Of(v), snap, v, beta); ok {
				m.Vertices[v] = next
			}
		}
	}
	if it > 0 {
		m.CalcStruct(mesh.NormOnly())
	}
	return it
}

// coincident returns every vertex whose position is shared exactly with
// another vertex.
func coincident(verts []r3.Vec) []int {
	first := make(map[r3.Vec]int, len(verts))
	var out []int
	marked := make(map[int]bool)
	for i, v := range verts {
		j, ok := first[v]
		if !ok {
			first[v] = i
			continue
		}
		if !marked[j] {
			marked[j] = true
			out = append(out, j)
		}
		out = append(out, i)
	}
	return out
}
