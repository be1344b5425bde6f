package spatial

import (
	"math"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultCandidates is the number of nearest face centroids examined when
// searching for the closest surface point.
const DefaultCandidates = 5

// Surface answers closest-point queries against a triangle mesh. Faces are
// shortlisted by centroid distance and the exact closest point is taken over
// the shortlist, so the answer is exact whenever the true closest face is
// among the k nearest centroids.
type Surface struct {
	m   *mesh.Mesh
	idx *Index
	k   int
}

// Hit is the result of a surface query.
type Hit struct {
	Point r3.Vec
	Face  int
	Dist  float64
}

// NewSurface indexes the face centroids of m. k < 1 selects
// DefaultCandidates. The mesh must not be edited while the Surface is in
// use.
func NewSurface(m *mesh.Mesh, k int) *Surface {
	if k < 1 {
		k = DefaultCandidates
	}
	return &Surface{m: m, idx: NewFaceIndex(m), k: k}
}

// Mesh returns the indexed mesh.
func (s *Surface) Mesh() *mesh.Mesh { return s.m }

// Centroids returns the underlying centroid index.
func (s *Surface) Centroids() *Index { return s.idx }

// Closest returns the point of the surface nearest to q among the
// candidate faces. An empty surface yields Face -1 at infinite distance.
func (s *Surface) Closest(q r3.Vec) Hit {
	best := Hit{Face: -1, Dist: math.Inf(1)}
	for _, n := range s.idx.KNearest(q, s.k) {
		a, b, c := s.m.Corners(n.Index)
		p := geom.ClosestPointOnTriangle(q, a, b, c)
		if d := r3.Norm(r3.Sub(p, q)); d < best.Dist {
			best = Hit{Point: p, Face: n.Index, Dist: d}
		}
	}
	return best
}

// RMSE returns the root-mean-square distance from pts to the surface.
func (s *Surface) RMSE(pts []r3.Vec) float64 {
	if len(pts) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pts {
		d := s.Closest(p).Dist
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pts)))
}
