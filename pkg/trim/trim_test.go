package trim

import (
	"testing"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func sphere(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := primitive.Sphere(1, 12, 24)
	require.NoError(t, err)
	for i, v := range m.Vertices {
		m.Values[i] = v.Z
	}
	return m
}

func TestPlanar(t *testing.T) {
	m := sphere(t)
	before := append([]r3.Vec(nil), m.Vertices...)

	out, err := Planar(m, 0.45, geom.Z)
	require.NoError(t, err)
	assert.Equal(t, before, m.Vertices, "input must not change")

	assert.LessOrEqual(t, out.Bounds().Max.Z, 0.45)
	assert.Less(t, out.FaceCount(), m.FaceCount())
	assert.Less(t, out.VertexCount(), m.VertexCount())
	require.NotEmpty(t, out.BoundaryEdges())
	for _, e := range out.BoundaryEdges() {
		for _, v := range out.Edges[e] {
			assert.Equal(t, 0.45, out.Vertices[v].Z)
		}
	}
	// Values follow their vertices; untouched vertices keep their height.
	require.Len(t, out.Values, out.VertexCount())
	for i, v := range out.Vertices {
		if v.Z < 0.45 {
			assert.Equal(t, v.Z, out.Values[i])
		}
	}
}

func TestPlanarLimits(t *testing.T) {
	m := sphere(t)
	out, err := Planar(m, 2, geom.Z)
	require.NoError(t, err)
	assert.Equal(t, m.FaceCount(), out.FaceCount())

	_, err = Planar(m, -2, geom.X)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Planar(m, 0, geom.Axis(4))
	assert.Error(t, err)
}

func TestThreePointMatchesPlanar(t *testing.T) {
	m := sphere(t)
	want, err := Planar(m, 0.45, geom.Z)
	require.NoError(t, err)
	got, err := ThreePoint(m, r3.Vec{Z: 0.45}, r3.Vec{X: 1, Z: 0.45}, r3.Vec{Y: 1, Z: 0.45})
	require.NoError(t, err)
	assert.Equal(t, want.Faces, got.Faces)
	for i := range want.Vertices {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(want.Vertices[i], got.Vertices[i])), 1e-12)
	}
}

func TestThreePointTilted(t *testing.T) {
	m := sphere(t)
	p0, p1, p2 := r3.Vec{Z: 0}, r3.Vec{X: 1, Z: 0.5}, r3.Vec{Y: 1}
	out, err := ThreePoint(m, p0, p1, p2)
	require.NoError(t, err)
	for _, v := range out.Vertices {
		assert.LessOrEqual(t, v.Z, 0.5*v.X+1e-12)
	}
}

func TestThreePointDegenerate(t *testing.T) {
	m := sphere(t)
	_, err := ThreePoint(m, r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 2})
	assert.ErrorIs(t, err, ErrDegeneratePlane)
	_, err = ThreePoint(m, r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Z: 1})
	assert.ErrorIs(t, err, ErrDegeneratePlane)
}

func TestDynamic(t *testing.T) {
	ref, err := primitive.Limb(1, 2, 8, 32)
	require.NoError(t, err)
	far, err := primitive.Sphere(0.5, 6, 12)
	require.NoError(t, err)

	d := mesh.Data{Vertices: append([]r3.Vec(nil), ref.Vertices...), Faces: append([][3]int(nil), ref.Faces...)}
	off := len(d.Vertices)
	for _, v := range far.Vertices {
		d.Vertices = append(d.Vertices, r3.Add(v, r3.Vec{X: 10}))
	}
	for _, f := range far.Faces {
		d.Faces = append(d.Faces, [3]int{f[0] + off, f[1] + off, f[2] + off})
	}
	m, err := mesh.FromData(d)
	require.NoError(t, err)

	out, err := Dynamic(m, ref, 0.5)
	require.NoError(t, err)
	assert.Equal(t, ref.FaceCount(), out.FaceCount())
	assert.Equal(t, ref.VertexCount(), out.VertexCount())
	assert.Less(t, out.Bounds().Max.X, 1.5)

	_, err = Dynamic(m, ref, 0)
	assert.Error(t, err)
	_, err = Dynamic(far, ref, 0.1)
	assert.ErrorIs(t, err, ErrEmpty)
}
