// Package spatial wraps gonum's k-d tree for the nearest-neighbour queries
// used by alignment, registration and trimming: a static point set (usually
// a target mesh's face centroids) is indexed once per run and then queried
// read-only.
package spatial

import (
	"math"
	"slices"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// point is a kdtree.Comparable carrying the index of the original element.
type point struct {
	r3.Vec
	idx int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	}
	return p.Z - q.Z
}

func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (p point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(point).Vec))
}

type points []point

func (p points) Index(i int) kdtree.Comparable { return p[i] }
func (p points) Len() int                      { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{pts: p, dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

// plane sorts points along one dimension for pivot selection.
type plane struct {
	pts points
	dim kdtree.Dim
}

func (p plane) Len() int { return len(p.pts) }
func (p plane) Less(i, j int) bool {
	return p.pts[i].Compare(p.pts[j], p.dim) < 0
}
func (p plane) Swap(i, j int) { p.pts[i], p.pts[j] = p.pts[j], p.pts[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.pts = p.pts[start:end]
	return p
}

// Neighbour is a query result: the index of the stored point and its
// Euclidean distance from the query.
type Neighbour struct {
	Index int
	Dist  float64
}

// Index is a read-only k-d tree over a fixed point set.
type Index struct {
	tree *kdtree.Tree
	pts  []r3.Vec
}

// New indexes pts. The slice is copied.
func New(pts []r3.Vec) *Index {
	ps := make(points, len(pts))
	for i, v := range pts {
		ps[i] = point{Vec: v, idx: i}
	}
	x := &Index{pts: append([]r3.Vec(nil), pts...)}
	if len(ps) > 0 {
		x.tree = kdtree.New(ps, false)
	}
	return x
}

// NewFaceIndex indexes the face centroids of m; result indices are face
// indices.
func NewFaceIndex(m *mesh.Mesh) *Index {
	return New(m.Centroids())
}

// NewVertexIndex indexes the vertices of m.
func NewVertexIndex(m *mesh.Mesh) *Index {
	return New(m.Vertices)
}

// Len returns the number of indexed points.
func (x *Index) Len() int { return len(x.pts) }

// Point returns the stored point i.
func (x *Index) Point(i int) r3.Vec { return x.pts[i] }

// Nearest returns the stored point closest to q. An empty index returns
// Index -1 at infinite distance.
func (x *Index) Nearest(q r3.Vec) Neighbour {
	if x.tree == nil {
		return Neighbour{Index: -1, Dist: math.Inf(1)}
	}
	c, d := x.tree.Nearest(point{Vec: q})
	if c == nil {
		return Neighbour{Index: -1, Dist: math.Inf(1)}
	}
	return Neighbour{Index: c.(point).idx, Dist: math.Sqrt(d)}
}

// KNearest returns up to k stored points closest to q, nearest first.
func (x *Index) KNearest(q r3.Vec, k int) []Neighbour {
	if x.tree == nil || k <= 0 {
		return nil
	}
	if k == 1 {
		return []Neighbour{x.Nearest(q)}
	}
	keep := kdtree.NewNKeeper(k)
	x.tree.NearestSet(keep, point{Vec: q})

	out := make([]Neighbour, 0, k)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, Neighbour{Index: cd.Comparable.(point).idx, Dist: math.Sqrt(cd.Dist)})
	}
	slices.SortFunc(out, func(a, b Neighbour) int {
		switch {
		case a.Dist < b.Dist:
			return -1
		case a.Dist > b.Dist:
			return 1
		}
		return a.Index - b.Index
	})
	return out
}
