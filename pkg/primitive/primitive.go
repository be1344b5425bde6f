// Package primitive generates watertight and open surfaces of revolution
// with exact, shared vertices: spheres, open tubes, and limb-like cups
// (a tube closed by a hemispherical end). They serve as phantoms for
// scripts and as fixtures with known volume and topology.
package primitive

import (
	"fmt"
	"math"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// ring is one latitude circle of a surface of revolution about Z.
type ring struct {
	r, z float64
}

// revolve builds a surface from rings ordered top to bottom, with optional
// pole vertices closing either end. Faces are wound so normals point away
// from the Z axis.
func revolve(rings []ring, top, bottom *float64, segs int) (*mesh.Mesh, error) {
	var verts []r3.Vec
	var faces [][3]int

	north := -1
	if top != nil {
		north = len(verts)
		verts = append(verts, r3.Vec{Z: *top})
	}
	base := len(verts)
	for _, rg := range rings {
		for j := 0; j < segs; j++ {
			phi := 2 * math.Pi * float64(j) / float64(segs)
			s, c := math.Sincos(phi)
			verts = append(verts, r3.Vec{X: rg.r * c, Y: rg.r * s, Z: rg.z})
		}
	}
	south := -1
	if bottom != nil {
		south = len(verts)
		verts = append(verts, r3.Vec{Z: *bottom})
	}

	p := func(i, j int) int { return base + i*segs + j%segs }

	if north >= 0 {
		for j := 0; j < segs; j++ {
			faces = append(faces, [3]int{north, p(0, j), p(0, j+1)})
		}
	}
	for i := 0; i+1 < len(rings); i++ {
		for j := 0; j < segs; j++ {
			a, b := p(i, j), p(i, j+1)
			c, d := p(i+1, j), p(i+1, j+1)
			faces = append(faces, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	if south >= 0 {
		last := len(rings) - 1
		for j := 0; j < segs; j++ {
			faces = append(faces, [3]int{p(last, j), south, p(last, j+1)})
		}
	}
	return mesh.FromData(mesh.Data{Vertices: verts, Faces: faces})
}

func checkRes(rows, segs, minRows int) error {
	if rows < minRows {
		return fmt.Errorf("need at least %d rows, got %d", minRows, rows)
	}
	if segs < 3 {
		return fmt.Errorf("need at least 3 segments, got %d", segs)
	}
	return nil
}

// Sphere returns a closed UV sphere centred on the origin with rows
// latitude bands and segs longitude segments.
func Sphere(radius float64, rows, segs int) (*mesh.Mesh, error) {
	if err := checkRes(rows, segs, 2); err != nil {
		return nil, fmt.Errorf("sphere: %w", err)
	}
	rings := make([]ring, 0, rows-1)
	for i := 1; i < rows; i++ {
		s, c := math.Sincos(math.Pi * float64(i) / float64(rows))
		rings = append(rings, ring{r: radius * s, z: radius * c})
	}
	top, bottom := radius, -radius
	return revolve(rings, &top, &bottom, segs)
}

// Tube returns an open cylinder of the given radius spanning z in
// [0, height]. Both rims are boundary loops.
func Tube(radius, height float64, rows, segs int) (*mesh.Mesh, error) {
	if err := checkRes(rows, segs, 1); err != nil {
		return nil, fmt.Errorf("tube: %w", err)
	}
	rings := make([]ring, 0, rows+1)
	for i := 0; i <= rows; i++ {
		rings = append(rings, ring{r: radius, z: height - height*float64(i)/float64(rows)})
	}
	return revolve(rings, nil, nil, segs)
}

// Limb returns a cup shaped like a residual-limb scan: an open tube from
// z = length down to z = 0, closed below by a hemisphere reaching
// z = -radius. The only boundary is the rim at z = length.
func Limb(radius, length float64, rows, segs int) (*mesh.Mesh, error) {
	if err := checkRes(rows, segs, 1); err != nil {
		return nil, fmt.Errorf("limb: %w", err)
	}
	capRows := max(2, segs/4)
	rings := make([]ring, 0, rows+capRows)
	for i := 0; i <= rows; i++ {
		rings = append(rings, ring{r: radius, z: length - length*float64(i)/float64(rows)})
	}
	for k := 1; k < capRows; k++ {
		theta := math.Pi/2 + math.Pi/2*float64(k)/float64(capRows)
		s, c := math.Sincos(theta)
		rings = append(rings, ring{r: radius * s, z: radius * c})
	}
	bottom := -radius
	return revolve(rings, nil, &bottom, segs)
}
