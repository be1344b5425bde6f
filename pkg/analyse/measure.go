package analyse

import (
	"fmt"
	"math"

	"github.com/abel-research/ampscan/pkg/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// PlaneAxis detects the axis a polygon was sliced along: the one with the
// smallest extent across its points.
func PlaneAxis(pts []r3.Vec) geom.Axis {
	if len(pts) == 0 {
		return geom.Z
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	ext := []float64{hi.X - lo.X, hi.Y - lo.Y, hi.Z - lo.Z}
	return geom.Axis(floats.MinIdx(ext))
}

// Perimeter sums the distances between consecutive points.
func Perimeter(p Polygon) float64 {
	sum := 0.0
	for i := 1; i < len(p.Points); i++ {
		sum += r3.Norm(r3.Sub(p.Points[i], p.Points[i-1]))
	}
	return sum
}

// Perimeters returns the perimeter of each polygon.
func Perimeters(polys []Polygon) []float64 {
	out := make([]float64, len(polys))
	for i, p := range polys {
		out[i] = Perimeter(p)
	}
	return out
}

// Area returns the enclosed area of the polygon by the shoelace formula on
// its two in-plane coordinates.
func Area(p Polygon) float64 {
	n := len(p.Points)
	if n < 3 {
		return 0
	}
	a, b := PlaneAxis(p.Points).Others()
	sum := 0.0
	for i := range p.Points {
		j := (i + 1) % n
		sum += a.Coord(p.Points[i])*b.Coord(p.Points[j]) - a.Coord(p.Points[j])*b.Coord(p.Points[i])
	}
	return 0.5 * math.Abs(sum)
}

// Areas returns the cross-sectional area of each polygon.
func Areas(polys []Polygon) []float64 {
	out := make([]float64, len(polys))
	for i, p := range polys {
		out[i] = Area(p)
	}
	return out
}

// Widths returns the polygon's extents along its two in-plane axes, in
// ascending axis order (for a z slice, the x width then the y width).
func Widths(p Polygon) [2]float64 {
	if len(p.Points) == 0 {
		return [2]float64{}
	}
	a, b := PlaneAxis(p.Points).Others()
	return [2]float64{extent(p.Points, a), extent(p.Points, b)}
}

func extent(pts []r3.Vec, axis geom.Axis) float64 {
	cs := make([]float64, len(pts))
	for i, p := range pts {
		cs[i] = axis.Coord(p)
	}
	return floats.Max(cs) - floats.Min(cs)
}

// Section aggregates every loop cut by one plane.
type Section struct {
	Plane     float64    `json:"plane"`
	Loops     int        `json:"loops"`
	Perimeter float64    `json:"perimeter"`
	Area      float64    `json:"area"`
	Widths    [2]float64 `json:"widths"`
}

// Sections groups consecutive polygons sharing a plane into one Section.
// Perimeters of all loops are summed. Area is the material cross-section:
// a loop nested inside an odd number of the plane's closed loops bounds a
// hole, such as the inner wall of a socket, and its area is subtracted.
// Widths span all loops of the plane.
func Sections(polys []Polygon) []Section {
	var out []Section
	for start := 0; start < len(polys); {
		end := start + 1
		for end < len(polys) && polys[end].Plane == polys[start].Plane {
			end++
		}
		out = append(out, section(polys[start:end]))
		start = end
	}
	return out
}

func section(group []Polygon) Section {
	s := Section{Plane: group[0].Plane, Loops: len(group)}
	var pts []r3.Vec
	for i, p := range group {
		s.Perimeter += Perimeter(p)
		if depth(group, i)%2 == 1 {
			s.Area -= Area(p)
		} else {
			s.Area += Area(p)
		}
		pts = append(pts, p.Points...)
	}
	s.Widths = Widths(Polygon{Points: pts})
	return s
}

// depth counts the closed loops of group, other than group[i], that
// contain the first point of group[i].
func depth(group []Polygon, i int) int {
	if len(group[i].Points) == 0 {
		return 0
	}
	q := group[i].Points[0]
	n := 0
	for j, p := range group {
		if j != i && p.Closed && contains(p, q) {
			n++
		}
	}
	return n
}

// contains reports whether q lies inside the closed polygon p, by ray
// crossing in the polygon's plane.
func contains(p Polygon, q r3.Vec) bool {
	a, b := PlaneAxis(p.Points).Others()
	qa, qb := a.Coord(q), b.Coord(q)
	in := false
	n := len(p.Points)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		ia, ib := a.Coord(p.Points[i]), b.Coord(p.Points[i])
		ja, jb := a.Coord(p.Points[j]), b.Coord(p.Points[j])
		if (ib > qb) != (jb > qb) && qa < (ja-ia)*(qb-ib)/(jb-ib)+ia {
			in = !in
		}
	}
	return in
}

// EstimateVolume integrates cross-sectional area between consecutive
// sections with the trapezoid rule.
func EstimateVolume(polys []Polygon) (float64, error) {
	secs := Sections(polys)
	if len(secs) < 2 {
		return 0, fmt.Errorf("estimate volume: %d sections: %w", len(secs), ErrNoSlices)
	}
	cum := CumulativeVolume(secs)
	return cum[len(cum)-1], nil
}

// CumulativeVolume returns, for each section, the trapezoid-rule volume
// enclosed between the first section and it.
func CumulativeVolume(secs []Section) []float64 {
	out := make([]float64, len(secs))
	for i := 1; i < len(secs); i++ {
		h := math.Abs(secs[i].Plane - secs[i-1].Plane)
		out[i] = out[i-1] + 0.5*(secs[i].Area+secs[i-1].Area)*h
	}
	return out
}
