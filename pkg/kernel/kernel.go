// Package kernel defines the solid modelling interface used to build
// phantom scans: analytic limbs and sockets that are meshed and then run
// through the same alignment, registration and analysis code as real
// scans. Implementations live in subpackages (sdfx).
package kernel

import (
	"fmt"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultCells is the marching cubes resolution along the longest side of
// a solid's bounding box.
const DefaultCells = 100

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() r3.Box
}

// Kernel builds solids and meshes them.
type Kernel interface {
	// Primitives, centred on the origin.
	Sphere(radius float64) (Solid, error)
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, t r3.Vec) Solid
	Rotate(s Solid, ang r3.Vec) Solid // Euler angles in degrees

	// ToMesh tessellates s with cells marching cubes cells along its
	// longest side; cells <= 0 selects DefaultCells.
	ToMesh(s Solid, cells int) (*mesh.Mesh, error)
}

// Limb returns a closed residual-limb phantom: a cylinder of the given
// radius from z = 0 to z = length, capped below by a hemisphere reaching
// z = -radius and cut flat at the top.
func Limb(k Kernel, radius, length float64) (Solid, error) {
	if !(radius > 0) || !(length > 0) {
		return nil, fmt.Errorf("limb: radius %g and length %g must be positive", radius, length)
	}
	cyl, err := k.Cylinder(length, radius)
	if err != nil {
		return nil, fmt.Errorf("limb: %w", err)
	}
	tip, err := k.Sphere(radius)
	if err != nil {
		return nil, fmt.Errorf("limb: %w", err)
	}
	return k.Union(k.Translate(cyl, r3.Vec{Z: length / 2}), tip), nil
}

// Socket returns a socket phantom for a limb of the given radius and
// length: a shell of thickness wall around the limb, open at the top.
func Socket(k Kernel, radius, length, wall float64) (Solid, error) {
	if !(wall > 0) {
		return nil, fmt.Errorf("socket: wall %g must be positive", wall)
	}
	outer, err := Limb(k, radius+wall, length)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	inner, err := Limb(k, radius, length+wall)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	return k.Difference(outer, inner), nil
}
