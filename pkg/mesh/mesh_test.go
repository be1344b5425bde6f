package mesh

import (
	"math"
	"testing"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	tetA = r3.Vec{}
	tetB = r3.Vec{X: 1}
	tetC = r3.Vec{Y: 1}
	tetD = r3.Vec{Z: 1}
)

// tetraSoup returns an outward-wound tetrahedron as triangle soup.
func tetraSoup() []r3.Vec {
	return []r3.Vec{
		tetA, tetC, tetB,
		tetA, tetD, tetC,
		tetA, tetB, tetD,
		tetB, tetC, tetD,
	}
}

func tetra(t *testing.T) *Mesh {
	t.Helper()
	m, err := Build(tetraSoup(), nil, nil)
	require.NoError(t, err)
	return m
}

// square is two triangles sharing the diagonal (0,2) of a unit square.
func square(t *testing.T) *Mesh {
	t.Helper()
	m, err := FromData(Data{
		Vertices: []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Faces:    [][3]int{{0, 1, 2}, {0, 2, 3}},
	})
	require.NoError(t, err)
	return m
}

// checkTopology asserts the structural invariants every built mesh holds.
func checkTopology(t *testing.T, m *Mesh) {
	t.Helper()
	require.Len(t, m.EdgeFaces, len(m.Edges))
	require.Len(t, m.FaceEdges, len(m.Faces))

	seen := make(map[[2]int]bool)
	for e, pair := range m.Edges {
		assert.Less(t, pair[0], pair[1], "edge %d not sorted", e)
		assert.False(t, seen[pair], "duplicate edge %v", pair)
		seen[pair] = true

		ef := m.EdgeFaces[e]
		assert.NotEqual(t, NoFace, ef[0], "edge %d has no face", e)
	}
	for f, fe := range m.FaceEdges {
		assert.NotEqual(t, fe[0], fe[1])
		assert.NotEqual(t, fe[0], fe[2])
		assert.NotEqual(t, fe[1], fe[2])
		face := m.Faces[f]
		for _, e := range fe {
			pair := m.Edges[e]
			in := 0
			for _, v := range face {
				if v == pair[0] || v == pair[1] {
					in++
				}
			}
			assert.Equal(t, 2, in, "face %d edge %d does not join two of its corners", f, e)
			ef := m.EdgeFaces[e]
			assert.True(t, ef[0] == f || ef[1] == f, "edge %d does not list face %d", e, f)
		}
	}
}

func TestBuildSoupUnifies(t *testing.T) {
	m := tetra(t)
	assert.Equal(t, 4, m.VertexCount())
	assert.Equal(t, 4, m.FaceCount())
	assert.Len(t, m.Edges, 6)
	assert.Len(t, m.Values, 4)
	assert.Empty(t, m.BoundaryEdges())
	checkTopology(t, m)

	// First occurrences keep their order: a, c, b, d.
	assert.Equal(t, []r3.Vec{tetA, tetC, tetB, tetD}, m.Vertices)
	assert.Equal(t, [3]int{0, 1, 2}, m.Faces[0])
}

func TestBuildWithFaces(t *testing.T) {
	verts := []r3.Vec{tetA, tetB, tetC, tetD, tetA}
	faces := [][3]int{{4, 2, 1}, {0, 3, 2}, {0, 1, 3}, {1, 2, 3}}
	m, err := Build(verts, faces, make([]r3.Vec, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertexCount())
	assert.Equal(t, [3]int{0, 2, 1}, m.Faces[0])
	checkTopology(t, m)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		verts   []r3.Vec
		faces   [][3]int
		normals []r3.Vec
		want    error
	}{
		{"partial triangle", tetraSoup()[:7], nil, nil, ErrCorrupt},
		{"normal count", tetraSoup(), nil, make([]r3.Vec, 3), ErrCorrupt},
		{"nan vertex", []r3.Vec{{X: math.NaN()}, tetB, tetC}, nil, nil, ErrCorrupt},
		{"index range", []r3.Vec{tetA, tetB, tetC}, [][3]int{{0, 1, 3}}, nil, ErrIndexRange},
		{"negative index", []r3.Vec{tetA, tetB, tetC}, [][3]int{{0, -1, 2}}, nil, ErrIndexRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.verts, tt.faces, tt.normals)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromDataLengthMismatch(t *testing.T) {
	_, err := FromData(Data{
		Vertices: []r3.Vec{tetA, tetB, tetC},
		Faces:    [][3]int{{0, 1, 2}},
		Values:   []float64{1, 2},
	})
	assert.ErrorIs(t, err, ErrLength)
}

func TestUnifyIdempotent(t *testing.T) {
	m := tetra(t)
	verts := append([]r3.Vec(nil), m.Vertices...)
	faces := append([][3]int(nil), m.Faces...)

	assert.Equal(t, 0, m.Unify())
	assert.Equal(t, verts, m.Vertices)
	assert.Equal(t, faces, m.Faces)
}

func TestUnifyCarriesValues(t *testing.T) {
	m := &Mesh{
		Vertices: []r3.Vec{tetA, tetB, tetC, tetB, tetD},
		Faces:    [][3]int{{0, 1, 2}, {3, 4, 2}},
		Values:   []float64{1, 2, 3, 20, 5},
	}
	assert.Equal(t, 1, m.Unify())
	assert.Equal(t, []float64{1, 2, 3, 5}, m.Values)
	assert.Equal(t, [3]int{1, 3, 2}, m.Faces[1])
}

func TestSquareBoundary(t *testing.T) {
	m := square(t)
	checkTopology(t, m)
	require.Len(t, m.Edges, 5)
	assert.Len(t, m.BoundaryEdges(), 4)

	diag := -1
	for e, pair := range m.Edges {
		if pair == [2]int{0, 2} {
			diag = e
		}
	}
	require.NotEqual(t, -1, diag)
	assert.False(t, m.IsBoundaryEdge(diag))
	assert.Equal(t, [2]int{0, 1}, m.EdgeFaces[diag], "first referencing face fills slot 0")

	bv := m.BoundaryVertices()
	assert.Equal(t, []bool{true, true, true, true}, bv)
}

func TestEdgesLexicographic(t *testing.T) {
	m := tetra(t)
	want := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	assert.Equal(t, want, m.Edges)
}

func TestFaceNormalsOutward(t *testing.T) {
	m := tetra(t)
	centre := m.Mean()
	for f, n := range m.FaceNormals {
		assert.InDelta(t, 1, r3.Norm(n), 1e-12)
		assert.Greater(t, r3.Dot(r3.Sub(m.Centroid(f), centre), n), 0.0, "face %d", f)
	}
	assert.InDelta(t, -1, m.FaceNormals[0].Z, 1e-12)
}

func TestVertexNormals(t *testing.T) {
	m := tetra(t)
	require.Len(t, m.VertexNormals, 4)
	// Vertex a touches the three axis-aligned faces.
	assert.InDelta(t, -1.0/3, m.VertexNormals[0].X, 1e-12)
	assert.InDelta(t, -1.0/3, m.VertexNormals[0].Y, 1e-12)
	assert.InDelta(t, -1.0/3, m.VertexNormals[0].Z, 1e-12)
}

func TestVertexNormalsSkipDegenerate(t *testing.T) {
	m := &Mesh{
		Vertices: []r3.Vec{tetA, tetB, tetC, {X: 2}},
		Faces:    [][3]int{{0, 1, 2}, {0, 1, 3}},
	}
	m.CalcStruct(NormOnly())
	assert.Equal(t, r3.Vec{}, m.FaceNormals[1])
	assert.Equal(t, r3.Vec{}, m.VertexNormals[3])
	assert.InDelta(t, 1, m.VertexNormals[0].Z, 1e-12)
}

func TestAdjacency(t *testing.T) {
	m := square(t)
	adj := m.Adjacency()
	require.Equal(t, 4, adj.Len())
	assert.ElementsMatch(t, []int{1, 2, 3}, adj.Of(0))
	assert.ElementsMatch(t, []int{0, 2}, adj.Of(1))
	assert.ElementsMatch(t, []int{0, 1, 3}, adj.Of(2))
	assert.ElementsMatch(t, []int{0, 2}, adj.Of(3))
}

func TestTranslateCentre(t *testing.T) {
	m := tetra(t)
	m.Translate(r3.Vec{X: 5, Y: -2})
	assert.Equal(t, r3.Vec{X: 5, Y: -2}, m.Vertices[0])

	m.Centre()
	c := m.Mean()
	assert.InDelta(t, 0, r3.Norm(c), 1e-12)

	other := tetra(t)
	other.Translate(r3.Vec{Z: 3})
	m.CentreStatic(other)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(m.Mean(), other.Mean())), 1e-12)
}

func TestRotate(t *testing.T) {
	m := tetra(t)
	m.RotateAng(r3.Vec{Z: 90}, geom.Degrees)
	// Vertex b sits at index 2 after unify.
	assert.InDelta(t, 0, m.Vertices[2].X, 1e-12)
	assert.InDelta(t, 1, m.Vertices[2].Y, 1e-12)
	assert.InDelta(t, -1, m.FaceNormals[0].Z, 1e-12)
	// Face (a,d,c) had normal -x.
	assert.InDelta(t, -1, m.FaceNormals[1].Y, 1e-12)
}

func TestFlipKeepsNormalsOutward(t *testing.T) {
	for _, axis := range []geom.Axis{geom.X, geom.Y, geom.Z} {
		m := tetra(t)
		require.NoError(t, m.Flip(axis))
		centre := m.Mean()
		for f, n := range m.FaceNormals {
			assert.Greater(t, r3.Dot(r3.Sub(m.Centroid(f), centre), n), 0.0, "axis %v face %d", axis, f)
		}
		checkTopology(t, m)
	}
	m := tetra(t)
	assert.Error(t, m.Flip(geom.Axis(5)))
}

func TestFixNorm(t *testing.T) {
	m := tetra(t)
	f := m.Faces[3]
	m.Faces[3] = [3]int{f[0], f[2], f[1]}
	m.CalcStruct(AllStruct())

	assert.Equal(t, 1, m.FixNorm())
	centre := m.Mean()
	for f, n := range m.FaceNormals {
		assert.Greater(t, r3.Dot(r3.Sub(m.Centroid(f), centre), n), 0.0, "face %d", f)
	}
	assert.Equal(t, 0, m.FixNorm())
}

func TestScaleAndBounds(t *testing.T) {
	m := tetra(t)
	m.Scale(2)
	b := m.Bounds()
	assert.Equal(t, r3.Vec{}, b.Min)
	assert.Equal(t, r3.Vec{X: 2, Y: 2, Z: 2}, b.Max)
	assert.InDelta(t, 2, m.FaceArea(0), 1e-12)
}

func TestCloneIsDeep(t *testing.T) {
	m := tetra(t)
	c := m.Clone()
	c.Vertices[0] = r3.Vec{X: 9}
	c.Faces[0][0] = 3
	assert.Equal(t, tetA, m.Vertices[0])
	assert.Equal(t, 0, m.Faces[0][0])
}

func TestBuffers(t *testing.T) {
	m := tetra(t)
	m.Values[1] = 2.5
	b := m.Buffers("tet")
	assert.Equal(t, 4, b.VertexCount())
	assert.Equal(t, 4, b.TriangleCount())
	assert.False(t, b.IsEmpty())
	assert.Len(t, b.Normals, 12)
	assert.Equal(t, float32(2.5), b.Values[1])
	assert.Equal(t, "tet", b.Name)
}
