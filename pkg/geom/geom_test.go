package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecNear(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		want Axis
		err  bool
	}{
		{"x", X, false},
		{"Y", Y, false},
		{"2", Z, false},
		{" z ", Z, false},
		{"w", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAxis(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestAxisOthers(t *testing.T) {
	a, b := Y.Others()
	assert.Equal(t, X, a)
	assert.Equal(t, Z, b)
	v := Z.With(r3.Vec{X: 1, Y: 2, Z: 3}, 9)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 9}, v)
	assert.Equal(t, 2.0, Y.Coord(v))
}

func TestRotationMatrixSingleAxes(t *testing.T) {
	tests := []struct {
		name string
		ang  r3.Vec
		in   r3.Vec
		want r3.Vec
	}{
		{"z90", r3.Vec{Z: 90}, r3.Vec{X: 1}, r3.Vec{Y: 1}},
		{"x90", r3.Vec{X: 90}, r3.Vec{Y: 1}, r3.Vec{Z: 1}},
		{"y90", r3.Vec{Y: 90}, r3.Vec{Z: 1}, r3.Vec{X: 1}},
		{"identity", r3.Vec{}, r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RotationMatrix(tt.ang, Degrees)
			vecNear(t, tt.want, r.MulVec(tt.in), 1e-12)
		})
	}
}

func TestRotationMatrixOrder(t *testing.T) {
	// X first, then Z: x-axis rotation leaves (1,0,0) alone, z-rotation then
	// carries it to (0,1,0).
	r := RotationMatrix(r3.Vec{X: math.Pi / 2, Z: math.Pi / 2}, Radians)
	vecNear(t, r3.Vec{Y: 1}, r.MulVec(r3.Vec{X: 1}), 1e-12)
	// (0,1,0) goes to (0,0,1) under X, and Z leaves it there.
	vecNear(t, r3.Vec{Z: 1}, r.MulVec(r3.Vec{Y: 1}), 1e-12)

	rad := RotationMatrix(r3.Vec{X: 0.3, Y: -0.2, Z: 1.1}, Radians)
	deg := RotationMatrix(r3.Vec{X: 0.3 * 180 / math.Pi, Y: -0.2 * 180 / math.Pi, Z: 1.1 * 180 / math.Pi}, Degrees)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, rad.At(i, j), deg.At(i, j), 1e-12)
		}
	}
	assert.InDelta(t, 1, rad.Det(), 1e-12)
}

func TestOrthonormalize(t *testing.T) {
	r := RotationMatrix(r3.Vec{X: 0.4, Y: 0.1, Z: -0.7}, Radians)
	noisy := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			noisy.Set(i, j, r.At(i, j)+1e-4*float64(i-j))
		}
	}
	o := Orthonormalize(noisy)
	assert.InDelta(t, 1, o.Det(), 1e-9)
	var rtr mat.Dense
	rtr.Mul(o.T(), o)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, rtr.At(i, j), 1e-9)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, r.At(i, j), o.At(i, j), 1e-3)
		}
	}
}

func TestOrthonormalizeReflection(t *testing.T) {
	refl := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, -1,
	})
	o := Orthonormalize(refl)
	assert.InDelta(t, 1, o.Det(), 1e-9)
}

func TestBarycentric(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	c := r3.Vec{Y: 1}

	u, v, w := Barycentric(r3.Vec{X: 0.25, Y: 0.25}, a, b, c)
	assert.InDelta(t, 0.5, u, 1e-12)
	assert.InDelta(t, 0.25, v, 1e-12)
	assert.InDelta(t, 0.25, w, 1e-12)

	u, v, w = Barycentric(r3.Vec{X: 2, Y: -1}, a, b, c)
	assert.InDelta(t, 0, u, 1e-12)
	assert.InDelta(t, 2, v, 1e-12)
	assert.InDelta(t, -1, w, 1e-12)

	u, _, _ = Barycentric(r3.Vec{}, a, a, a)
	assert.True(t, math.IsNaN(u))
}

func TestClampToTriangle(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	c := r3.Vec{Y: 1}
	tests := []struct {
		name string
		p    r3.Vec
		want r3.Vec
	}{
		{"inside", r3.Vec{X: 0.2, Y: 0.3}, r3.Vec{X: 0.2, Y: 0.3}},
		{"below edge ab", r3.Vec{X: 0.5, Y: -1}, r3.Vec{X: 0.5}},
		{"past vertex b", r3.Vec{X: 3, Y: -1}, r3.Vec{X: 1}},
		{"beyond hypotenuse", r3.Vec{X: 1, Y: 1}, r3.Vec{X: 0.5, Y: 0.5}},
		{"behind vertex a", r3.Vec{X: -1, Y: -1}, r3.Vec{}},
		{"on edge", r3.Vec{X: 0.5}, r3.Vec{X: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampToTriangle(tt.p, a, b, c)
			vecNear(t, tt.want, got, 1e-12)
			assert.True(t, Inside(got, a, b, c, 1e-12))
		})
	}
}

func TestClampDegenerateTriangle(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	got := ClampToTriangle(r3.Vec{X: 0.5, Y: 2}, a, b, b)
	vecNear(t, r3.Vec{X: 0.5}, got, 1e-12)
}

func TestClosestPointOnTriangle(t *testing.T) {
	a := r3.Vec{Z: 1}
	b := r3.Vec{X: 1, Z: 1}
	c := r3.Vec{Y: 1, Z: 1}
	got := ClosestPointOnTriangle(r3.Vec{X: 0.1, Y: 0.1, Z: 5}, a, b, c)
	vecNear(t, r3.Vec{X: 0.1, Y: 0.1, Z: 1}, got, 1e-12)
	got = ClosestPointOnTriangle(r3.Vec{X: 2, Y: 2, Z: -3}, a, b, c)
	vecNear(t, r3.Vec{X: 0.5, Y: 0.5, Z: 1}, got, 1e-12)
}

func TestPlaneEdgeIntersect(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: -1}
	b := r3.Vec{X: 2, Y: 4, Z: 3}
	require.True(t, Straddles(a, b, Z, 0))
	got := PlaneEdgeIntersect(a, b, Z, 0)
	vecNear(t, r3.Vec{X: 0.5, Y: 1, Z: 0}, got, 1e-12)

	// A vertex exactly on the plane is above it.
	assert.False(t, Below(r3.Vec{Z: 0}, Z, 0))
	assert.False(t, Straddles(r3.Vec{Z: 0}, r3.Vec{Z: 1}, Z, 0))
	assert.True(t, Straddles(r3.Vec{Z: 0}, r3.Vec{Z: -1}, Z, 0))

	same := PlaneEdgeIntersect(a, r3.Vec{X: 1, Z: -1}, Z, 0)
	assert.Equal(t, a, same)
}
