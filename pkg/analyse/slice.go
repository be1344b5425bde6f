// Package analyse measures scans: it cuts a mesh with axis-aligned planes
// into ordered cross-section polygons, derives perimeters, areas, widths
// and a slice-integrated volume from them, and closes open scans so their
// enclosed volume can be computed directly.
package analyse

import (
	"errors"
	"fmt"
	"slices"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNoSlices is returned when a measurement needs more cross-sections
	// than were supplied.
	ErrNoSlices = errors.New("not enough slices")

	// ErrCloseExhausted is returned when hole closing has not produced a
	// watertight mesh within its iteration cap. The caller may retry with a
	// larger cap or repair the input.
	ErrCloseExhausted = errors.New("hole closing did not converge")
)

// Polygon is one ordered cross-section loop. A closed polygon repeats its
// first point at the end. Open polygons arise where a plane meets the open
// rim of a scan.
type Polygon struct {
	Points []r3.Vec
	Closed bool
	Plane  float64
	Axis   geom.Axis
}

// Slice cuts m with planes perpendicular to axis at each position and
// returns the cross-section loops in plane order. Planes that miss the
// mesh are skipped. A plane crossing several separate parts of the mesh
// yields one polygon per loop.
//
// m is not modified. When its edge structure is missing or out of date the
// cut runs on a copy with fresh structure; callers slicing one mesh many
// times should call CalcStruct first.
func Slice(m *mesh.Mesh, planes []float64, axis geom.Axis) ([]Polygon, error) {
	if !axis.Valid() {
		return nil, fmt.Errorf("slice: invalid axis %d", int(axis))
	}
	if len(m.EdgeFaces) != len(m.Edges) || len(m.FaceEdges) != len(m.Faces) || m.Edges == nil {
		m = m.Clone()
		m.CalcStruct(mesh.StructOptions{Edges: true, EdgeFaces: true})
	}

	var out []Polygon
	crossing := make([]bool, len(m.Edges))
	for _, plane := range planes {
		hit := false
		for e, pair := range m.Edges {
			crossing[e] = geom.Straddles(m.Vertices[pair[0]], m.Vertices[pair[1]], axis, plane)
			hit = hit || crossing[e]
		}
		if !hit {
			continue
		}
		for _, loop := range walkLoops(m, crossing) {
			pts := make([]r3.Vec, 0, len(loop.edges)+1)
			for _, e := range loop.edges {
				pair := m.Edges[e]
				pts = append(pts, geom.PlaneEdgeIntersect(m.Vertices[pair[0]], m.Vertices[pair[1]], axis, plane))
			}
			if loop.closed {
				pts = append(pts, pts[0])
			}
			out = append(out, Polygon{Points: pts, Closed: loop.closed, Plane: plane, Axis: axis})
		}
	}
	return out, nil
}

type edgeLoop struct {
	edges  []int
	closed bool
}

// walkLoops orders the crossing edges into loops. Each face cut by the
// plane holds exactly two crossing edges, so stepping from an edge into a
// neighbouring face and out through its other crossing edge walks the
// section. A walk that reaches the mesh rim is resumed from its start in
// the opposite direction and reported open.
func walkLoops(m *mesh.Mesh, crossing []bool) []edgeLoop {
	visited := make([]bool, len(crossing))
	var loops []edgeLoop
	for start, c := range crossing {
		if !c || visited[start] {
			continue
		}
		visited[start] = true
		fwd, closed := walk(m, crossing, visited, start, m.EdgeFaces[start][0])
		loop := edgeLoop{edges: append([]int{start}, fwd...), closed: closed}
		if !closed {
			back, _ := walk(m, crossing, visited, start, m.EdgeFaces[start][1])
			slices.Reverse(back)
			loop.edges = append(back, loop.edges...)
		}
		if len(loop.edges) < 2 {
			continue
		}
		loops = append(loops, loop)
	}
	return loops
}

// walk follows crossing edges from edge e into face f until it returns to
// a visited edge (closed) or leaves the mesh (open). The starting edge is
// not included in the result.
func walk(m *mesh.Mesh, crossing, visited []bool, e, f int) ([]int, bool) {
	var out []int
	for f != mesh.NoFace {
		next := -1
		for _, fe := range m.FaceEdges[f] {
			if fe != e && crossing[fe] {
				next = fe
				break
			}
		}
		if next < 0 {
			return out, false
		}
		if visited[next] {
			return out, true
		}
		visited[next] = true
		out = append(out, next)
		ef := m.EdgeFaces[next]
		if ef[0] == f {
			f = ef[1]
		} else {
			f = ef[0]
		}
		e = next
	}
	return out, false
}
