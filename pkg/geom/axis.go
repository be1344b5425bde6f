// Package geom provides the small geometric kernels shared by the mesh,
// registration and analysis packages: Euler rotation matrices, barycentric
// clamping onto triangles and axis-aligned plane intersection.
//
// Everything here is a pure function over gonum r3 vectors; nothing in the
// package allocates a mesh or returns an error.
package geom

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis names one of the three coordinate axes.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// ParseAxis accepts "x", "y", "z" (any case) or the indices "0", "1", "2".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "0":
		return X, nil
	case "y", "1":
		return Y, nil
	case "z", "2":
		return Z, nil
	}
	return 0, fmt.Errorf("invalid axis %q, expected x, y, or z", s)
}

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Valid reports whether a is one of X, Y or Z.
func (a Axis) Valid() bool { return a >= X && a <= Z }

// Coord returns the component of v along a.
func (a Axis) Coord(v r3.Vec) float64 {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	}
	return v.Z
}

// With returns v with its a component replaced by c.
func (a Axis) With(v r3.Vec, c float64) r3.Vec {
	switch a {
	case X:
		v.X = c
	case Y:
		v.Y = c
	default:
		v.Z = c
	}
	return v
}

// Others returns the two axes perpendicular to a, in ascending order.
func (a Axis) Others() (Axis, Axis) {
	switch a {
	case X:
		return Y, Z
	case Y:
		return X, Z
	}
	return X, Y
}

// Unit returns the unit vector along a.
func (a Axis) Unit() r3.Vec {
	return a.With(r3.Vec{}, 1)
}
