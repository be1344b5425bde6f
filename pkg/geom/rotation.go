package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AngleUnit selects how Euler angles are interpreted.
type AngleUnit int

const (
	Radians AngleUnit = iota
	Degrees
)

// ParseAngleUnit accepts "rad" or "deg" (and their long forms).
func ParseAngleUnit(s string) (AngleUnit, error) {
	switch s {
	case "rad", "radians", "":
		return Radians, nil
	case "deg", "degrees":
		return Degrees, nil
	}
	return 0, fmt.Errorf("angle unit expected rad or deg, got %q", s)
}

// RotationMatrix builds the rotation for Euler angles about X, then Y, then
// Z. The composition is Rz·Ry·Rx, so a point is rotated about X first.
func RotationMatrix(ang r3.Vec, unit AngleUnit) *r3.Mat {
	if unit == Degrees {
		ang = r3.Scale(math.Pi/180, ang)
	}
	sx, cx := math.Sincos(ang.X)
	sy, cy := math.Sincos(ang.Y)
	sz, cz := math.Sincos(ang.Z)

	rx := r3.NewMat([]float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := r3.NewMat([]float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := r3.NewMat([]float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})

	zy := r3.NewMat(nil)
	zy.Mul(rz, ry)
	r := r3.NewMat(nil)
	r.Mul(zy, rx)
	return r
}

// Orthonormalize returns the rotation closest to m in the Frobenius sense,
// U·Vᵀ from the SVD of m with the sign of the last singular direction fixed so
// the result is a proper rotation (det = +1). Accumulated floating point drift
// in a chain of composed rotations is removed this way.
func Orthonormalize(m mat.Matrix) *r3.Mat {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return r3.Eye()
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	out := r3.NewMat(nil)
	out.CloneFrom(&r)
	return out
}

// MatFromDense copies a 3×3 gonum matrix into an r3.Mat.
func MatFromDense(m mat.Matrix) *r3.Mat {
	out := r3.NewMat(nil)
	out.CloneFrom(m)
	return out
}

// Transpose returns a new r3.Mat holding mᵀ.
func Transpose(m *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.CloneFrom(m.T())
	return out
}

// Mul returns a·b as a new matrix.
func Mul(a, b *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.Mul(a, b)
	return out
}
