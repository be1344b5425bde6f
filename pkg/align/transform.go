package align

import (
	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a rigid motion x' = R·x + T. A nil R is the identity.
type Transform struct {
	R *r3.Mat
	T r3.Vec
}

// Identity returns the transform that leaves every point in place.
func Identity() Transform {
	return Transform{R: r3.Eye()}
}

func (t Transform) rot() *r3.Mat {
	if t.R == nil {
		return r3.Eye()
	}
	return t.R
}

// Apply transforms a single point.
func (t Transform) Apply(v r3.Vec) r3.Vec {
	return r3.Add(t.rot().MulVec(v), t.T)
}

// ApplyMesh transforms m in place. Normals are rotated with the vertices.
func (t Transform) ApplyMesh(m *mesh.Mesh) {
	m.RigidTransform(t.R, t.T)
}

// Then returns the transform equivalent to applying t and then next.
func (t Transform) Then(next Transform) Transform {
	r := next.rot()
	return Transform{
		R: geom.Mul(r, t.rot()),
		T: r3.Add(r.MulVec(t.T), next.T),
	}
}

// Compose is Then with the arguments read right to left: a.Compose(b)
// applies b first.
func (t Transform) Compose(first Transform) Transform {
	return first.Then(t)
}

// Inverse returns the transform undoing t, assuming R is a rotation.
func (t Transform) Inverse() Transform {
	rt := geom.Transpose(t.rot())
	return Transform{R: rt, T: r3.Scale(-1, rt.MulVec(t.T))}
}

// Orthonormal returns t with its rotation replaced by the nearest proper
// rotation.
func (t Transform) Orthonormal() Transform {
	return Transform{R: geom.Orthonormalize(t.rot()), T: t.T}
}
